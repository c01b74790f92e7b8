package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/mixlink/pkg/engine"
	"github.com/bft-labs/mixlink/pkg/mixlink"
	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// Config holds CLI configuration for mixlink.
type Config struct {
	Master       bool
	Applications bool

	Priority     []string
	Blacklist    []string
	DisplayNames map[string]string
	Capitalize   bool
	MaxApps      int

	SerialPort string
	BaudRate   int
	Debug      bool

	ReadTimeout       time.Duration
	ReconnectInterval time.Duration

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Master:            true,
		Applications:      true,
		DisplayNames:      map[string]string{},
		Capitalize:        true,
		MaxApps:           5,
		BaudRate:          transport.DefaultBaudRate,
		ReadTimeout:       transport.DefaultReadTimeout,
		ReconnectInterval: engine.DefaultReconnectInterval,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !c.Master && !c.Applications {
		return fmt.Errorf("at least one of master or applications must be enabled")
	}
	if c.MaxApps <= 0 {
		return fmt.Errorf("max_apps must be positive")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baudrate must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive")
	}
	for bin, label := range c.DisplayNames {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("display name for %q is empty", bin)
		}
	}
	return nil
}

// Settings converts the display part of the configuration.
func (c *Config) Settings() volume.Settings {
	return volume.Settings{
		Master:       c.Master,
		Applications: c.Applications,
		Priority:     c.Priority,
		Blacklist:    c.Blacklist,
		MaxDisplay:   c.MaxApps,
		Names: volume.NameOptions{
			Overrides:  c.DisplayNames,
			Capitalize: c.Capitalize,
		},
	}
}

// RunnerConfig converts the configuration for mixlink.New.
func (c *Config) RunnerConfig() mixlink.Config {
	return mixlink.Config{
		Settings:          c.Settings(),
		Port:              c.SerialPort,
		BaudRate:          c.BaudRate,
		Debug:             c.Debug,
		ReadTimeout:       c.ReadTimeout,
		ReconnectInterval: c.ReconnectInterval,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setStrings replaces a list when the source is present. An explicitly empty
// list in a file clears the default.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setMap merges entries into dst.
func (s *configSetter) setMap(flag string, value map[string]string, dst *map[string]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(value))
	}
	for k, v := range value {
		(*dst)[k] = v
	}
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setListFromString splits a comma-separated list.
func (s *configSetter) setListFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
