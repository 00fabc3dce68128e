// Package logging provides structured logging for the Fauxmo responder.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("ssdp").Info("bound", "address", "192.168.1.20")
//
// Never log secrets such as the MQTT password or InfluxDB token.
package logging
