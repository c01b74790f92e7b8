package mixlink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bft-labs/mixlink/pkg/engine"
	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
	"github.com/bft-labs/mixlink/pkg/volume/platform"
)

var (
	ErrAlreadyRunning  = errors.New("already running")
	ErrNotRunning      = errors.New("not running")
	ErrShutdownTimeout = errors.New("shutdown timeout")
)

// ShutdownTimeout bounds how long Stop waits for the sync loop. A serial read
// in progress finishes within the read timeout; a stdin read may not finish.
const ShutdownTimeout = 15 * time.Second

// Runner syncs a display device with the local volume controls. Use New to
// create an instance, then Start to begin.
type Runner struct {
	config Config
	logger log.Logger
	engine *engine.Engine
	opener transport.Opener

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a Runner. Backend selection happens here, so an unsupported
// platform is reported before anything starts.
func New(cfg Config, opts ...Option) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		b, err := platform.Backend(o.logger)
		if err != nil {
			return nil, fmt.Errorf("select volume backend: %w", err)
		}
		backend = b
	}

	opener := o.opener
	if opener == nil {
		opener = newOpener(cfg, o)
	}

	dir := volume.NewDirectory(backend, cfg.Settings, o.logger.With(log.String("component", "directory")))

	engCfg := engine.Config{
		ReconnectInterval: cfg.ReconnectInterval,
		Reconnect:         !cfg.Debug,
	}
	eng := engine.New(engCfg, dir, opener,
		engine.WithLogger(o.logger.With(log.String("component", "engine"))),
		engine.WithObserver(&eventEmitterWrapper{handler: o.eventHandler}),
	)

	return &Runner{
		config: cfg,
		logger: o.logger,
		engine: eng,
		opener: opener,
	}, nil
}

func newOpener(cfg Config, o options) transport.Opener {
	if cfg.Debug {
		in, out := o.stdin, o.stdout
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return transport.NewStdioOpener(in, out)
	}
	return transport.NewSerialOpener(cfg.Port, cfg.BaudRate, cfg.ReadTimeout)
}

// Start runs the sync loop in the background and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	r.running = true

	r.logger.Info("starting",
		log.String("link", r.opener.Describe()),
		log.String("platform", platform.Name()),
	)

	go func(done chan struct{}) {
		defer close(done)
		err := r.engine.Run(runCtx)

		r.mu.Lock()
		r.err = err
		r.running = false
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("sync stopped", log.Err(err))
		}
	}(r.done)

	return nil
}

// Stop requests the loop to end and waits up to ShutdownTimeout. The loop
// exits after its current read returns.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(ShutdownTimeout):
		r.logger.Warn("shutdown timeout, forcing exit", log.Duration("timeout", ShutdownTimeout))
		return ErrShutdownTimeout
	}
}

// Done is closed when the loop started by the last Start call exits.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the error the last run ended with, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Config returns the configuration the runner was created with.
func (r *Runner) Config() Config {
	return r.config
}

// Status returns the current connection state.
// Safe to call concurrently from any goroutine.
func (r *Runner) Status() State {
	return r.engine.State()
}

// Stats returns the protocol counters.
func (r *Runner) Stats() engine.Stats {
	return r.engine.Stats()
}

// UpdateSettings replaces the directory settings. The change takes effect at
// the start of the next sync cycle. Safe for concurrent use.
func (r *Runner) UpdateSettings(s volume.Settings) {
	r.engine.UpdateSettings(s)
}
