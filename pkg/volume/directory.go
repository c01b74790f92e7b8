package volume

import (
	"context"
	"fmt"

	"github.com/bft-labs/mixlink/pkg/log"
)

// enumerateAttempts bounds retries of a failing application enumeration.
// Session listings race with applications starting and exiting.
const enumerateAttempts = 3

// Settings controls which entities a Directory exposes and in what order.
type Settings struct {
	Master       bool
	Applications bool

	// Priority lists binaries that must appear first, in this order.
	Priority []string
	// Blacklist lists binaries that never appear.
	Blacklist []string

	// MaxDisplay bounds the display set. Zero or less means unbounded.
	MaxDisplay int

	Names NameOptions
}

// DefaultSettings shows the master and applications, at most five entries.
func DefaultSettings() Settings {
	return Settings{
		Master:       true,
		Applications: true,
		MaxDisplay:   5,
	}
}

// Directory enumerates, orders, filters and caches entities from a Backend.
//
// A Directory is not safe for concurrent use. The sync loop is its only
// caller; ordering between a send and the matching receive relies on that.
type Directory struct {
	backend  Backend
	settings Settings
	logger   log.Logger

	master    Entity
	masterErr error
	masterSet bool

	apps   []Entity
	cached bool
}

// NewDirectory creates a directory over backend.
func NewDirectory(backend Backend, settings Settings, logger log.Logger) *Directory {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Directory{
		backend:  backend,
		settings: settings,
		logger:   logger,
	}
}

// Settings returns the active settings.
func (d *Directory) Settings() Settings {
	return d.settings
}

// UpdateSettings replaces the settings and drops the cached application list.
// The memoized master entity survives.
func (d *Directory) UpdateSettings(s Settings) {
	d.settings = s
	d.Invalidate()
}

// Invalidate forces the next Applications call to re-enumerate.
func (d *Directory) Invalidate() {
	d.apps = nil
	d.cached = false
}

// Master returns the master entity, acquiring it on first use. An acquisition
// failure is remembered and returned on every later call.
func (d *Directory) Master(ctx context.Context) (Entity, error) {
	if !d.masterSet {
		d.master, d.masterErr = d.backend.Master(ctx)
		if d.masterErr != nil {
			d.masterErr = fmt.Errorf("acquire master volume: %w", d.masterErr)
		}
		d.masterSet = true
	}
	return d.master, d.masterErr
}

// Applications returns the ordered, filtered application list. With useCache
// and a previous enumeration the cached slice is returned as-is.
func (d *Directory) Applications(ctx context.Context, useCache bool) []Entity {
	if useCache && d.cached {
		return d.apps
	}

	raw, err := d.enumerate(ctx)
	if err != nil {
		d.logger.Warn("application enumeration failed, keeping previous list",
			log.Err(err),
			log.Int("cached", len(d.apps)),
		)
		d.cached = true
		return d.apps
	}

	d.apps = order(raw, d.settings.Priority, d.settings.Blacklist)
	d.cached = true
	return d.apps
}

func (d *Directory) enumerate(ctx context.Context) ([]Entity, error) {
	var err error
	for attempt := 1; attempt <= enumerateAttempts; attempt++ {
		var raw []Entity
		raw, err = d.backend.Applications(ctx)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Debug("enumerate applications", log.Int("attempt", attempt), log.Err(err))
	}
	return nil, err
}

// All returns the master (when enabled) followed by the applications (when
// enabled).
func (d *Directory) All(ctx context.Context, useCache bool) ([]Entity, error) {
	var all []Entity
	if d.settings.Master {
		m, err := d.Master(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	if d.settings.Applications {
		all = append(all, d.Applications(ctx, useCache)...)
	}
	return all, nil
}

// Display returns the prefix of All that fits on the device.
func (d *Directory) Display(ctx context.Context, useCache bool) ([]Entity, error) {
	all, err := d.All(ctx, useCache)
	if err != nil {
		return nil, err
	}
	if limit := d.settings.MaxDisplay; limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Apply sets the volume of the entity at index in the most recently built
// display set.
func (d *Directory) Apply(ctx context.Context, index, vol int) error {
	if vol < MinVolume || vol > MaxVolume {
		return fmt.Errorf("%w: %d", ErrVolumeOutOfRange, vol)
	}
	display, err := d.Display(ctx, true)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(display) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(display))
	}
	return display[index].SetVolume(vol)
}

// order moves prioritized binaries to the front in priority order, then
// appends the rest in their original order. Blacklisted binaries are dropped
// from both parts. Entities without a binary are never prioritized or
// blacklisted.
func order(raw []Entity, priority, blacklist []string) []Entity {
	blocked := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		if b != "" {
			blocked[b] = true
		}
	}

	taken := make([]bool, len(raw))
	out := make([]Entity, 0, len(raw))

	for _, p := range priority {
		if p == "" || blocked[p] {
			continue
		}
		for i, e := range raw {
			if e.Binary() != p {
				continue
			}
			if !taken[i] {
				taken[i] = true
				out = append(out, e)
			}
			break
		}
	}

	for i, e := range raw {
		if taken[i] {
			continue
		}
		if b := e.Binary(); b != "" && blocked[b] {
			continue
		}
		out = append(out, e)
	}
	return out
}
