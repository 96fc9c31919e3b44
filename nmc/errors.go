package nmc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedAxis = errors.New("unsupported axis")
	ErrNotConnected    = errors.New("not connected")
)

// ProtocolError reports a reply that could not be interpreted.
type ProtocolError struct {
	Command string
	Reply   string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (reply %q)", e.Command, e.Reason, e.Reply)
}
