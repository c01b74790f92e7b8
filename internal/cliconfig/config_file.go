package cliconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations and pointers for
// bools so that absent keys can be told apart from false.
type FileConfig struct {
	Master            *bool             `toml:"master" yaml:"master"`
	Applications      *bool             `toml:"applications" yaml:"applications"`
	Priority          []string          `toml:"priority" yaml:"priority"`
	Blacklist         []string          `toml:"blacklist" yaml:"blacklist"`
	DisplayNames      map[string]string `toml:"display_names" yaml:"display_names"`
	CapitalizeNames   *bool             `toml:"capitalize_names" yaml:"capitalize_names"`
	MaxApps           int               `toml:"max_apps" yaml:"max_apps"`
	SerialPort        string            `toml:"serial_port" yaml:"serial_port"`
	BaudRate          int               `toml:"baudrate" yaml:"baudrate"`
	ReadTimeout       string            `toml:"read_timeout" yaml:"read_timeout"`
	ReconnectInterval string            `toml:"reconnect_interval" yaml:"reconnect_interval"`
	LogLevel          string            `toml:"log_level" yaml:"log_level"`
}

// LoadFileConfig reads and parses a config file. Files ending in .yaml or
// .yml are parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if isYAML(path) {
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
		return fc, nil
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.mixlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mixlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setBool("master", fc.Master, &cfg.Master)
	s.setBool("applications", fc.Applications, &cfg.Applications)
	s.setBool("capitalize", fc.CapitalizeNames, &cfg.Capitalize)

	s.setStrings("priority", fc.Priority, &cfg.Priority)
	s.setStrings("blacklist", fc.Blacklist, &cfg.Blacklist)
	s.setMap("display-names", fc.DisplayNames, &cfg.DisplayNames)

	s.setInt("max-apps", fc.MaxApps, &cfg.MaxApps)
	s.setInt("baudrate", fc.BaudRate, &cfg.BaudRate)

	s.setString("port", fc.SerialPort, &cfg.SerialPort)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-interval", fc.ReconnectInterval, &cfg.ReconnectInterval); err != nil {
		return err
	}

	return nil
}

// FileConfigFrom converts cfg back to its file form.
func FileConfigFrom(cfg Config) FileConfig {
	master, apps, capitalize := cfg.Master, cfg.Applications, cfg.Capitalize
	priority := cfg.Priority
	if priority == nil {
		priority = []string{}
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = []string{}
	}
	return FileConfig{
		Master:            &master,
		Applications:      &apps,
		Priority:          priority,
		Blacklist:         blacklist,
		DisplayNames:      cfg.DisplayNames,
		CapitalizeNames:   &capitalize,
		MaxApps:           cfg.MaxApps,
		SerialPort:        cfg.SerialPort,
		BaudRate:          cfg.BaudRate,
		ReadTimeout:       cfg.ReadTimeout.String(),
		ReconnectInterval: cfg.ReconnectInterval.String(),
		LogLevel:          cfg.LogLevel,
	}
}

// WriteFileConfig writes cfg to path, creating parent directories. The format
// follows the file extension as in LoadFileConfig. An existing file is only
// replaced when overwrite is set.
func WriteFileConfig(path string, cfg Config, overwrite bool) error {
	if !overwrite && FileExists(path) {
		return fmt.Errorf("config file %s already exists", path)
	}

	fc := FileConfigFrom(cfg)
	var (
		b   []byte
		err error
	)
	if isYAML(path) {
		b, err = yaml.Marshal(fc)
	} else {
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		err = enc.Encode(fc)
		b = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
