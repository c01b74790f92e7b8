package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdio(t *testing.T) {
	var out bytes.Buffer
	o := NewStdioOpener(strings.NewReader("0,10\r\n\n1,20"), &out)

	c, err := o.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.WriteLine("Main,5\n"))
	assert.Equal(t, "Main,5\n", out.String())

	for _, want := range []string{"0,10", "", "1,20"} {
		line, err := c.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err = c.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}
