package mixlink

import (
	"io"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// Option configures optional behavior of a Runner.
type Option func(*options)

type options struct {
	logger       log.Logger
	backend      volume.Backend
	opener       transport.Opener
	stdin        io.Reader
	stdout       io.Writer
	eventHandler EventHandler
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend replaces the platform volume backend.
func WithBackend(b volume.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithOpener replaces the transport selected from Config.
func WithOpener(op transport.Opener) Option {
	return func(o *options) {
		o.opener = op
	}
}

// WithStdio sets the streams used in debug mode. Defaults to os.Stdin and
// os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.stdin = in
		o.stdout = out
	}
}

// WithEventHandler sets a handler for runner events.
// Events are called synchronously from the sync goroutine.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}
