package nmc

import (
	"context"
	"strings"
	"sync"

	"github.com/w1xm/nmc_interface/protocol"
)

// FakeAntenna stands in for the control script when no hardware is
// reachable. It completes every command and answers PARAM with canned
// values.
type FakeAntenna struct {
	WSN  int
	Site string
	DSS  int

	mu   sync.Mutex
	last string
}

var fakeParams = map[string]string{
	"AzimuthAngle":   "60",
	"ElevationAngle": "45",
	"Status":         "operational",
}

func NewFakeAntenna() *FakeAntenna {
	return &FakeAntenna{WSN: 0, Site: "CDSCC", DSS: 43}
}

// LastCommand returns the most recent command line, without terminator.
func (f *FakeAntenna) LastCommand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeAntenna) Exchange(_ context.Context, cmd string, recvSize int) (string, error) {
	cmd = strings.TrimSpace(cmd)
	f.mu.Lock()
	f.last = cmd
	f.mu.Unlock()

	fields := strings.Fields(cmd)
	resp := protocol.Completed
	if len(fields) > 0 {
		switch strings.ToUpper(fields[0]) {
		case "PARAM":
			values := make([]string, 0, len(fields)-1)
			for _, name := range fields[1:] {
				v, ok := fakeParams[name]
				if !ok {
					v = "0"
				}
				values = append(values, v)
			}
			resp = strings.Join(values, ", ")
		case "GET_PARAMS":
			resp = "AzimuthAngle, ElevationAngle, Status"
		}
	}
	resp += string(protocol.Terminator)
	if recvSize > 0 && len(resp) > recvSize {
		resp = resp[:recvSize]
	}
	return resp, nil
}

func (f *FakeAntenna) Close() error {
	return nil
}
