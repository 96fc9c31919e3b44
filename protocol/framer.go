package protocol

import (
	"bytes"
	"errors"
	"io"
)

// DefaultChunkSize is the read size the NMC control script uses.
const DefaultChunkSize = 8

// MaxLineLength bounds an unterminated line.
const MaxLineLength = 4096

var ErrLineTooLong = errors.New("protocol: line too long")

// Framer splits a byte stream into lines. It reads fixed-size chunks and
// accumulates them until a terminator arrives, so the line boundaries it
// reports do not depend on how the peer's writes were chunked.
type Framer struct {
	r     io.Reader
	chunk []byte
	buf   []byte
}

func NewFramer(r io.Reader, chunkSize int) *Framer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Framer{r: r, chunk: make([]byte, chunkSize)}
}

// ReadLine returns the next line without its terminator. At end of stream
// a trailing unterminated fragment is discarded and io.EOF returned. A line
// reaching MaxLineLength without a terminator yields ErrLineTooLong.
func (f *Framer) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(f.buf, Terminator); i >= 0 {
			line := string(f.buf[:i])
			f.buf = f.buf[i+1:]
			return line, nil
		}
		if len(f.buf) >= MaxLineLength {
			f.buf = nil
			return "", ErrLineTooLong
		}
		n, err := f.r.Read(f.chunk)
		f.buf = append(f.buf, f.chunk[:n]...)
		if err != nil {
			if n > 0 && bytes.IndexByte(f.buf, Terminator) >= 0 {
				continue
			}
			return "", err
		}
	}
}
