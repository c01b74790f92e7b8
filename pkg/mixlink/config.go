package mixlink

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/mixlink/pkg/engine"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// Config holds the configuration for a Runner.
type Config struct {
	// Settings control which entities are shown and in what order.
	Settings volume.Settings

	// Port is the serial device path. Empty selects the first enumerated
	// port, resolved again on every connection attempt.
	Port     string
	BaudRate int

	// Debug links to stdin/stdout instead of a serial port.
	Debug bool

	ReadTimeout       time.Duration
	ReconnectInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Settings:          volume.DefaultSettings(),
		BaudRate:          transport.DefaultBaudRate,
		ReadTimeout:       transport.DefaultReadTimeout,
		ReconnectInterval: engine.DefaultReconnectInterval,
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = transport.DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = transport.DefaultReadTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = engine.DefaultReconnectInterval
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if !c.Settings.Master && !c.Settings.Applications {
		return errors.New("nothing to display: master and applications are both disabled")
	}
	if c.Settings.MaxDisplay < 0 {
		return fmt.Errorf("max display must not be negative, got %d", c.Settings.MaxDisplay)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", c.BaudRate)
	}
	return nil
}
