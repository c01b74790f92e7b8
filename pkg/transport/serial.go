package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 5 * time.Second

	// maxLineLength bounds buffered input that never sees a terminator.
	maxLineLength = 4096
)

// Port is the subset of serial.Port used by SerialConn.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial ports with USB details where available.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return out, nil
}

// SerialOpener opens a serial port. An empty Port selects the first
// enumerated port, resolved again on every Open.
type SerialOpener struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration

	// ListPorts and OpenPort default to go.bug.st/serial.
	ListPorts func() ([]string, error)
	OpenPort  func(name string, baud int) (Port, error)
}

// NewSerialOpener returns an opener with library defaults for unset values.
func NewSerialOpener(port string, baud int, readTimeout time.Duration) *SerialOpener {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &SerialOpener{
		Port:        port,
		BaudRate:    baud,
		ReadTimeout: readTimeout,
		ListPorts:   serial.GetPortsList,
		OpenPort:    openSerialPort,
	}
}

func openSerialPort(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Describe names the configured port.
func (o *SerialOpener) Describe() string {
	if o.Port == "" {
		return "serial:auto"
	}
	return "serial:" + o.Port
}

// Resolve returns the port Open would use now.
func (o *SerialOpener) Resolve() (string, error) {
	if o.Port != "" {
		return o.Port, nil
	}
	ports, err := o.ListPorts()
	if err != nil {
		return "", fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		return "", ErrNoPorts
	}
	return ports[0], nil
}

// Open resolves and opens the port.
func (o *SerialOpener) Open(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := o.Resolve()
	if err != nil {
		return nil, err
	}
	p, err := o.OpenPort(name, o.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return NewSerialConn(p, name, o.ReadTimeout), nil
}

// SerialConn frames lines over a Port with a bounded read per line.
type SerialConn struct {
	port    Port
	name    string
	timeout time.Duration
	buf     []byte
	chunk   []byte
	now     func() time.Time

	// overflow is set while the rest of an overlong line is skipped.
	overflow bool
}

// NewSerialConn wraps an open port.
func NewSerialConn(p Port, name string, timeout time.Duration) *SerialConn {
	return &SerialConn{
		port:    p,
		name:    name,
		timeout: timeout,
		chunk:   make([]byte, 256),
		now:     time.Now,
	}
}

// Name returns the device path.
func (c *SerialConn) Name() string { return c.name }

// ReadLine waits up to the read timeout for a complete line. On timeout it
// returns "" and drops any partial line, so a fragment never prefixes the
// next frame. Lines longer than maxLineLength are skipped up to their
// terminator.
func (c *SerialConn) ReadLine() (string, error) {
	deadline := c.now().Add(c.timeout)
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			line := string(c.buf[:i])
			c.buf = c.buf[i+1:]
			return strings.TrimRight(line, "\r"), nil
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			c.resetPartial()
			return "", nil
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}
		n, err := c.port.Read(c.chunk)
		if n > 0 {
			c.buffer(c.chunk[:n])
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", c.name, err)
		}
		if n == 0 {
			c.resetPartial()
			return "", nil
		}
	}
}

// buffer appends p, skipping the remainder of an overlong line.
func (c *SerialConn) buffer(p []byte) {
	if c.overflow {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			return
		}
		c.overflow = false
		p = p[i+1:]
	}
	c.buf = append(c.buf, p...)
	if bytes.IndexByte(c.buf, '\n') < 0 && len(c.buf) > maxLineLength {
		c.buf = c.buf[:0]
		c.overflow = true
	}
}

func (c *SerialConn) resetPartial() {
	c.buf = c.buf[:0]
	c.overflow = false
}

// WriteLine writes the whole frame.
func (c *SerialConn) WriteLine(line string) error {
	b := []byte(line)
	for len(b) > 0 {
		n, err := c.port.Write(b)
		if err != nil {
			return fmt.Errorf("write %s: %w", c.name, err)
		}
		if n == 0 {
			return fmt.Errorf("write %s: %w", c.name, io.ErrShortWrite)
		}
		b = b[n:]
	}
	return nil
}

func (c *SerialConn) Close() error {
	return c.port.Close()
}
