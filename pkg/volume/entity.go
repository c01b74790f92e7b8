package volume

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedPlatform is returned when no backend exists for the running OS.
	ErrUnsupportedPlatform = errors.New("volume: unsupported platform")
	// ErrIndexOutOfRange is returned when an update targets a position outside
	// the current display set.
	ErrIndexOutOfRange = errors.New("volume: index out of range")
	// ErrVolumeOutOfRange is returned when an update carries a volume outside 0-100.
	ErrVolumeOutOfRange = errors.New("volume: value out of range")
)

const (
	MinVolume = 0
	MaxVolume = 100
)

// Type distinguishes the master entity from application entities.
type Type int

const (
	TypeMaster Type = iota
	TypeApplication
)

func (t Type) String() string {
	switch t {
	case TypeMaster:
		return "master"
	case TypeApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Entity is one controllable volume target.
//
// Name and Binary return "" when the value is unknown. Volume samples the
// backend on every call and falls back to the last good reading on error.
// SetVolume clamps to [MinVolume, MaxVolume] before reaching the backend.
type Entity interface {
	Name() string
	Binary() string
	Type() Type
	Volume() int
	SetVolume(v int) error
}

// Backend produces entities for one platform.
type Backend interface {
	// Applications returns the raw, unordered list of sound-producing
	// applications. Implementations merge streams that share a binary.
	Applications(ctx context.Context) ([]Entity, error)

	// Master acquires the master volume entity. It is called at most once per
	// Directory.
	Master(ctx context.Context) (Entity, error)
}

// Clamp limits v to [MinVolume, MaxVolume].
func Clamp(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
