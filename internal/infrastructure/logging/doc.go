// Package logging provides structured logging for the KNX state monitor.
//
// It wraps log/slog with JSON or text output, level filtering and the
// default fields service and version on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger, closer, err := logging.Open(cfg.Logging, version)
//	logger.Info("monitor started", "slots", 32)
//	logger.With("component", "knx").Error("send failed", "error", err)
package logging
