// Package logging provides structured logging for Slotlink Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, and a service/version pair on every
// entry.
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	ingestLog := logger.Component("ingestor")
//	ingestLog.Info("reading stored", "slot", 3, "value", "21.5")
//
// Never log passwords, tokens or reset codes outside dev mode.
package logging
