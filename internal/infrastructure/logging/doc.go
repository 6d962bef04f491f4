// Package logging provides structured logging for the airlink bridge.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
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
//	logger := logging.New(cfg.Logging, version)
//	applianceLog := logger.ForAppliance(id, model)
//	applianceLog.Info("refresh published", "category", "device")
//
// Never log appliance credentials or API secrets.
package logging
