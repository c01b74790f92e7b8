// Package engine drives the request/response cycle with the display device.
//
// Each cycle sends the current display set, then waits a bounded time for one
// control frame. A timeout triggers a resend; a received frame is applied and
// followed by a resend. Transport faults drop the connection and the engine
// reconnects after a fixed backoff, forever, until its context is canceled.
//
// # State Machine
//
// Valid state transitions:
//   - Disconnected -> Connecting
//   - Connecting -> Connected, Disconnected
//   - Connected -> Disconnected
//   - Stopped -> Connecting
//   - any -> Stopped
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/protocol"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// ErrInit marks a fault that ends the whole session, such as a master
// volume that cannot be acquired.
var ErrInit = errors.New("engine: initialization failed")

// Directory is the view of the volume directory the engine needs.
type Directory interface {
	Display(ctx context.Context, useCache bool) ([]volume.Entity, error)
	Apply(ctx context.Context, index, vol int) error
	Settings() volume.Settings
	UpdateSettings(s volume.Settings)
}

// Config tunes the engine.
type Config struct {
	// ReconnectInterval is the fixed delay after a failed open.
	ReconnectInterval time.Duration
	// Reconnect re-opens the link after a transport fault. When false the
	// first fault ends Run; this is the debug (stdio) behavior.
	Reconnect bool
}

// DefaultConfig reconnects every DefaultReconnectInterval.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval: DefaultReconnectInterval,
		Reconnect:         true,
	}
}

// Stats counts protocol events since the engine was created.
type Stats struct {
	FramesSent     uint64
	UpdatesApplied uint64
	UpdatesDropped uint64
	Timeouts       uint64
	Reconnects     uint64
}

// Engine owns the transport and runs the sync loop. Run must not be called
// concurrently with itself.
type Engine struct {
	cfg     Config
	dir     Directory
	opener  transport.Opener
	logger  log.Logger
	states  *stateMachine
	backoff *Backoff

	pending atomic.Pointer[volume.Settings]

	framesSent     atomic.Uint64
	updatesApplied atomic.Uint64
	updatesDropped atomic.Uint64
	timeouts       atomic.Uint64
	reconnects     atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers a state change observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.states.observer = o }
}

// WithSleeper replaces the backoff clock.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.backoff = NewBackoff(e.cfg.ReconnectInterval, s) }
}

// New creates an engine in StateDisconnected.
func New(cfg Config, dir Directory, opener transport.Opener, opts ...Option) *Engine {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	e := &Engine{
		cfg:    cfg,
		dir:    dir,
		opener: opener,
		logger: log.NewNoopLogger(),
		states: newStateMachine(log.NewNoopLogger(), nil),
	}
	e.backoff = NewBackoff(cfg.ReconnectInterval, nil)
	for _, opt := range opts {
		opt(e)
	}
	e.states.logger = e.logger
	return e
}

// State returns the current connection state. Safe for concurrent use.
func (e *Engine) State() State {
	return e.states.State()
}

// Stats returns a snapshot of the protocol counters. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	return Stats{
		FramesSent:     e.framesSent.Load(),
		UpdatesApplied: e.updatesApplied.Load(),
		UpdatesDropped: e.updatesDropped.Load(),
		Timeouts:       e.timeouts.Load(),
		Reconnects:     e.reconnects.Load(),
	}
}

// UpdateSettings queues new directory settings. They take effect at the top
// of the next cycle, never between a send and the matching receive. Safe for
// concurrent use.
func (e *Engine) UpdateSettings(s volume.Settings) {
	e.pending.Store(&s)
}

// Run connects and streams until ctx is canceled, returning nil in that case.
// Cancellation is observed after a read returns, never mid-read. An
// initialization fault is returned wrapped in ErrInit. Without Reconnect, a
// transport fault ends Run; end of input is not reported as an error.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.dir.Display(ctx, false); err != nil {
		e.stop("initialization failed")
		return fmt.Errorf("%w: %w", ErrInit, err)
	}

	if err := e.states.transitionTo(StateConnecting, "start"); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			e.stop("stop requested")
			return nil
		}

		conn, err := e.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.stop("stop requested")
				return nil
			}
			e.logger.Warn("connection failed, retrying",
				log.String("link", e.opener.Describe()),
				log.Err(err),
				log.Int("attempt", e.backoff.Fail()),
				log.Duration("retry_in", e.backoff.Interval()),
			)
			_ = e.states.transitionTo(StateDisconnected, err.Error())
			if err := e.backoff.Sleep(ctx); err != nil {
				e.stop("stop requested")
				return nil
			}
			_ = e.states.transitionTo(StateConnecting, "retry")
			continue
		}

		e.backoff.Reset()
		_ = e.states.transitionTo(StateConnected, e.opener.Describe())
		e.logger.Info("connected", log.String("link", e.opener.Describe()))

		err = e.stream(ctx, conn)
		if cerr := conn.Close(); cerr != nil {
			e.logger.Debug("close connection", log.Err(cerr))
		}

		var tf *transportFault
		switch {
		case err == nil:
			e.stop("stop requested")
			return nil
		case !errors.As(err, &tf):
			e.stop("initialization failed")
			return fmt.Errorf("%w: %w", ErrInit, err)
		case !e.cfg.Reconnect:
			e.stop("link closed")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		e.logger.Warn("connection lost", log.String("link", e.opener.Describe()), log.Err(err))
		_ = e.states.transitionTo(StateDisconnected, err.Error())
		e.reconnects.Add(1)
		_ = e.states.transitionTo(StateConnecting, "reconnect")
	}
}

func (e *Engine) stop(reason string) {
	if e.states.State() != StateStopped {
		_ = e.states.transitionTo(StateStopped, reason)
	}
}

// transportFault marks errors that end the current connection only.
type transportFault struct {
	err error
}

func (f *transportFault) Error() string { return f.err.Error() }
func (f *transportFault) Unwrap() error { return f.err }

// stream runs send/receive cycles on conn. It returns nil when ctx is
// canceled, a *transportFault when the link fails, or a directory error.
func (e *Engine) stream(ctx context.Context, conn transport.Conn) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		e.applyPendingSettings()

		display, err := e.dir.Display(ctx, false)
		if err != nil {
			return err
		}
		frame := protocol.Encode(display, e.dir.Settings().Names)
		if err := conn.WriteLine(frame); err != nil {
			return &transportFault{err: err}
		}
		e.framesSent.Add(1)

		line, err := conn.ReadLine()
		if err != nil {
			return &transportFault{err: err}
		}
		if ctx.Err() != nil {
			return nil
		}
		e.handleLine(ctx, line)
	}
}

// handleLine decodes and applies one control frame. Every failure is dropped.
func (e *Engine) handleLine(ctx context.Context, line string) {
	u, err := protocol.Decode(line)
	if errors.Is(err, protocol.ErrEmptyLine) {
		e.timeouts.Add(1)
		return
	}
	if err != nil {
		e.updatesDropped.Add(1)
		e.logger.Debug("dropped frame", log.String("line", line), log.Err(err))
		return
	}
	if err := e.dir.Apply(ctx, u.Index, u.Volume); err != nil {
		e.updatesDropped.Add(1)
		e.logger.Debug("update not applied",
			log.Int("index", u.Index),
			log.Int("volume", u.Volume),
			log.Err(err),
		)
		return
	}
	e.updatesApplied.Add(1)
}

func (e *Engine) applyPendingSettings() {
	if s := e.pending.Swap(nil); s != nil {
		e.dir.UpdateSettings(*s)
		e.logger.Info("settings reloaded",
			log.Int("max_display", s.MaxDisplay),
			log.Strings("priority", s.Priority),
		)
	}
}
