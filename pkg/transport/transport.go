// Package transport provides the line-oriented links between mixlink and the
// display device: a serial port with bounded reads, and stdin/stdout for
// debugging.
package transport

import (
	"context"
	"errors"
)

// ErrNoPorts is returned when port autodetection finds nothing to open.
var ErrNoPorts = errors.New("transport: no serial ports found")

// Conn is one open link.
type Conn interface {
	// ReadLine returns the next line without its terminator. An empty line
	// with a nil error means the read timed out.
	ReadLine() (string, error)
	// WriteLine writes one complete frame, terminator included.
	WriteLine(line string) error
	Close() error
}

// Opener establishes connections. It is called again after every fault.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
	// Describe names the link for log lines.
	Describe() string
}
