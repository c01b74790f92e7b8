// Package log provides the structured logging abstraction used across mixlink.
//
// Components accept a Logger instead of a concrete zerolog.Logger so that the
// sync loop, the volume directory and the config watcher can be exercised in
// tests with NewNoopLogger.
//
// # Usage
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel)
//	logger.Info("connected", log.String("port", "/dev/ttyACM0"))
//
// Component loggers carry a fixed field:
//
//	engineLog := logger.With(log.String("component", "engine"))
package log
