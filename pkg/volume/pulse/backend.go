// Package pulse implements volume.Backend on top of the pactl control utility,
// which talks to PulseAudio and to PipeWire's pulse compatibility server.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
)

const defaultSink = "@DEFAULT_SINK@"

// DefaultCommandTimeout bounds a single pactl invocation.
const DefaultCommandTimeout = 2 * time.Second

// Backend enumerates sink inputs and controls the default sink.
type Backend struct {
	runner  Runner
	timeout time.Duration
	logger  log.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithRunner replaces the pactl runner.
func WithRunner(r Runner) Option {
	return func(b *Backend) { b.runner = r }
}

// WithLogger sets the logger for read failures.
func WithLogger(l log.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithCommandTimeout bounds each pactl invocation.
func WithCommandTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New creates a pactl backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		runner:  NewExecRunner(),
		timeout: DefaultCommandTimeout,
		logger:  log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.runner.Run(ctx, args...)
}

// Applications lists sink inputs, merging inputs that share a binary.
func (b *Backend) Applications(ctx context.Context) ([]volume.Entity, error) {
	out, err := b.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, err
	}

	var (
		apps     []volume.Entity
		byBinary = map[string]*application{}
	)
	for _, in := range parseSinkInputs(out) {
		if in.Binary != "" {
			if existing, ok := byBinary[in.Binary]; ok {
				existing.ids = append(existing.ids, in.ID)
				continue
			}
		}
		a := &application{
			backend: b,
			ids:     []int{in.ID},
			name:    in.Name,
			binary:  in.Binary,
			volume:  in.Level(),
		}
		if a.name == "" && a.binary != "" {
			a.name, _, _ = strings.Cut(a.binary, ".")
		}
		if in.Binary != "" {
			byBinary[in.Binary] = a
		}
		apps = append(apps, a)
	}
	return apps, nil
}

// Master probes the sound server and returns the default sink entity.
func (b *Backend) Master(ctx context.Context) (volume.Entity, error) {
	if _, err := b.run(ctx, "info"); err != nil {
		return nil, fmt.Errorf("pulse server unavailable: %w", err)
	}
	return &master{backend: b}, nil
}

// application is one or more sink inputs of the same binary. Reads sample the
// first input; writes fan out to all of them.
type application struct {
	backend *Backend
	ids     []int
	name    string
	binary  string
	volume  int
}

func (a *application) Name() string      { return a.name }
func (a *application) Binary() string    { return a.binary }
func (a *application) Type() volume.Type { return volume.TypeApplication }

func (a *application) Volume() int {
	out, err := a.backend.run(context.Background(), "list", "sink-inputs")
	if err != nil {
		a.backend.logger.Debug("read sink input volume", log.String("binary", a.binary), log.Err(err))
		return a.volume
	}
	for _, in := range parseSinkInputs(out) {
		if in.ID == a.ids[0] && in.HasVolume {
			a.volume = in.Level()
			break
		}
	}
	return a.volume
}

func (a *application) SetVolume(v int) error {
	v = volume.Clamp(v)
	ctx := context.Background()
	var errs []error
	for _, id := range a.ids {
		sid := strconv.Itoa(id)
		if _, err := a.backend.run(ctx, "set-sink-input-mute", sid, "0"); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := a.backend.run(ctx, "set-sink-input-volume", sid, percent(v)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.volume = v
	return nil
}

// master is the default sink.
type master struct {
	backend *Backend
	volume  int
}

func (m *master) Name() string      { return "Main" }
func (m *master) Binary() string    { return "" }
func (m *master) Type() volume.Type { return volume.TypeMaster }

func (m *master) Volume() int {
	ctx := context.Background()
	mute, err := m.backend.run(ctx, "get-sink-mute", defaultSink)
	if err != nil {
		m.backend.logger.Debug("read master mute", log.Err(err))
		return m.volume
	}
	if parseMute(strings.TrimSpace(string(mute))) {
		m.volume = 0
		return m.volume
	}
	out, err := m.backend.run(ctx, "get-sink-volume", defaultSink)
	if err != nil {
		m.backend.logger.Debug("read master volume", log.Err(err))
		return m.volume
	}
	if v, ok := parsePercent(firstLine(out)); ok {
		m.volume = v
	}
	return m.volume
}

func (m *master) SetVolume(v int) error {
	v = volume.Clamp(v)
	ctx := context.Background()
	if _, err := m.backend.run(ctx, "set-sink-mute", defaultSink, "0"); err != nil {
		return err
	}
	if _, err := m.backend.run(ctx, "set-sink-volume", defaultSink, percent(v)); err != nil {
		return err
	}
	m.volume = v
	return nil
}

func percent(v int) string {
	return strconv.Itoa(v) + "%"
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}
