// Package wasapi implements volume.Backend on the Windows Core Audio session
// API. The COM binding lives in the windows-only files; this file holds the
// session merging and volume mapping shared by every build.
package wasapi

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// Control is one volume control: a session's simple volume or the render
// endpoint's volume. Levels are scalars in [0, 1].
type Control interface {
	Level() (float32, error)
	SetLevel(v float32) error
	Muted() (bool, error)
	SetMute(m bool) error
}

// Session is an audio session owned by a running process.
type Session struct {
	// Binary is the executable name, e.g. "firefox.exe".
	Binary string
	// DisplayName is the name the application set for the session, if any.
	DisplayName string
	Control     Control
}

// Device lists the sessions of the default render endpoint and exposes its
// volume.
type Device interface {
	Sessions(ctx context.Context) ([]Session, error)
	Endpoint(ctx context.Context) (Control, error)
}

// Backend adapts a Device to volume.Backend.
type Backend struct {
	device Device
	logger log.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger for read failures.
func WithLogger(l log.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates a backend over device.
func New(device Device, opts ...Option) *Backend {
	b := &Backend{device: device, logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Applications lists process sessions, merging sessions of the same binary.
func (b *Backend) Applications(ctx context.Context) ([]volume.Entity, error) {
	sessions, err := b.device.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		apps     []volume.Entity
		byBinary = map[string]*application{}
	)
	for _, s := range sessions {
		key := strings.ToLower(s.Binary)
		if existing, ok := byBinary[key]; ok && key != "" {
			existing.controls = append(existing.controls, s.Control)
			continue
		}
		a := &application{
			logger:   b.logger,
			controls: []Control{s.Control},
			name:     sessionName(s),
			binary:   s.Binary,
		}
		if key != "" {
			byBinary[key] = a
		}
		apps = append(apps, a)
	}
	return apps, nil
}

// Master acquires the default render endpoint volume.
func (b *Backend) Master(ctx context.Context) (volume.Entity, error) {
	c, err := b.device.Endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return &master{logger: b.logger, control: c}, nil
}

// sessionName prefers the session display name. Resource references such as
// "@%SystemRoot%\System32\AudioSrv.Dll,-202" are not names.
func sessionName(s Session) string {
	if s.DisplayName != "" && !strings.HasPrefix(s.DisplayName, "@") {
		return s.DisplayName
	}
	name, _, _ := strings.Cut(s.Binary, ".")
	return name
}

// read returns 0 for a muted control, otherwise the rounded level.
func read(c Control) (int, error) {
	muted, err := c.Muted()
	if err != nil {
		return 0, err
	}
	if muted {
		return 0, nil
	}
	level, err := c.Level()
	if err != nil {
		return 0, err
	}
	return volume.Clamp(int(math.Round(float64(level) * 100))), nil
}

// write unmutes c and sets its level.
func write(c Control, v int) error {
	if err := c.SetMute(false); err != nil {
		return err
	}
	return c.SetLevel(float32(v) / 100)
}

// application is one or more sessions of the same binary. Reads sample the
// first session; writes fan out to all of them.
type application struct {
	logger   log.Logger
	controls []Control
	name     string
	binary   string
	volume   int
}

func (a *application) Name() string      { return a.name }
func (a *application) Binary() string    { return a.binary }
func (a *application) Type() volume.Type { return volume.TypeApplication }

func (a *application) Volume() int {
	v, err := read(a.controls[0])
	if err != nil {
		a.logger.Debug("read session volume", log.String("binary", a.binary), log.Err(err))
		return a.volume
	}
	a.volume = v
	return a.volume
}

func (a *application) SetVolume(v int) error {
	v = volume.Clamp(v)
	var errs []error
	for _, c := range a.controls {
		if err := write(c, v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.volume = v
	return nil
}

// master is the default render endpoint.
type master struct {
	logger  log.Logger
	control Control
	volume  int
}

func (m *master) Name() string      { return "Main" }
func (m *master) Binary() string    { return "" }
func (m *master) Type() volume.Type { return volume.TypeMaster }

func (m *master) Volume() int {
	v, err := read(m.control)
	if err != nil {
		m.logger.Debug("read endpoint volume", log.Err(err))
		return m.volume
	}
	m.volume = v
	return m.volume
}

func (m *master) SetVolume(v int) error {
	v = volume.Clamp(v)
	if err := write(m.control, v); err != nil {
		return err
	}
	m.volume = v
	return nil
}
