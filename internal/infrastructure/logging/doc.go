// Package logging provides structured logging for the FleetDesk client.
//
// This package wraps Go's standard log/slog package so every component
// (session store, realtime channel, console) logs with the same shape.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("realtime channel connected", "url", endpoint)
//	logger.Warn("session rejected", "token", logging.Redact(token))
//
// # Security
//
// Never log full session tokens or passwords. Use Redact.
package logging
