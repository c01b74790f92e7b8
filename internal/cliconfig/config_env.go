package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (MIXLINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setBoolFromString("master", os.Getenv("MIXLINK_MASTER"), &cfg.Master)
	s.setBoolFromString("applications", os.Getenv("MIXLINK_APPLICATIONS"), &cfg.Applications)
	s.setBoolFromString("capitalize", os.Getenv("MIXLINK_CAPITALIZE_NAMES"), &cfg.Capitalize)

	s.setListFromString("priority", os.Getenv("MIXLINK_PRIORITY"), &cfg.Priority)
	s.setListFromString("blacklist", os.Getenv("MIXLINK_BLACKLIST"), &cfg.Blacklist)

	s.setString("port", os.Getenv("MIXLINK_SERIAL_PORT"), &cfg.SerialPort)
	s.setString("log-level", os.Getenv("MIXLINK_LOG_LEVEL"), &cfg.LogLevel)
	s.setBoolFromString("debug", os.Getenv("MIXLINK_DEBUG"), &cfg.Debug)

	if err := s.setIntFromString("max-apps", os.Getenv("MIXLINK_MAX_APPS"), &cfg.MaxApps); err != nil {
		return err
	}
	if err := s.setIntFromString("baudrate", os.Getenv("MIXLINK_BAUDRATE"), &cfg.BaudRate); err != nil {
		return err
	}

	if err := s.setDuration("read-timeout", os.Getenv("MIXLINK_READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-interval", os.Getenv("MIXLINK_RECONNECT_INTERVAL"), &cfg.ReconnectInterval); err != nil {
		return err
	}

	return nil
}
