package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// StdioOpener links the engine to a reader and writer, normally stdin and
// stdout. Reads block until a full line arrives; there is no timeout.
type StdioOpener struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

// NewStdioOpener creates an opener over in and out.
func NewStdioOpener(in io.Reader, out io.Writer) *StdioOpener {
	return &StdioOpener{In: in, Out: out}
}

func (o *StdioOpener) Describe() string { return "stdio" }

// Open always succeeds. Every returned Conn shares one buffered reader so no
// input is lost between connections.
func (o *StdioOpener) Open(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.once.Do(func() { o.reader = bufio.NewReader(o.In) })
	return &stdioConn{r: o.reader, w: o.Out}, nil
}

type stdioConn struct {
	r *bufio.Reader
	w io.Writer
}

func (c *stdioConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *stdioConn) WriteLine(line string) error {
	_, err := io.WriteString(c.w, line)
	return err
}

func (c *stdioConn) Close() error { return nil }
