// Package logging provides structured logging for the Sonos bridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("bridge").Info("connected", "broker", host)
//
// Never log secrets, tokens or passwords.
package logging
