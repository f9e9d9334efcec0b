package bootstrap

import (
	"market_client/internal/core"
	"market_client/pkg/logging"
)

const serviceName = "market_client"

// Version is reported as the telemetry service version. Binaries overwrite it at startup.
var Version = "dev"

// InitLogger builds the zap logger from configuration and installs it globally.
func InitLogger(cfg *Config) (core.ILogger, error) {
	zl, err := logging.New(logging.Options{
		Level:       cfg.System.LogLevel,
		Format:      cfg.System.LogFormat,
		DisableOTel: !cfg.Telemetry.Enable,
	})
	if err != nil {
		return nil, err
	}

	logger := zl.WithField("service", serviceName)
	if cfg.App.Username != "" {
		logger = logger.WithField("username", cfg.App.Username)
	}

	logging.SetGlobalLogger(logger)
	return logger, nil
}
