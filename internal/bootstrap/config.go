package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"market_client/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := CheckPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// CheckPreFlight performs environment checks beyond schema validation
func CheckPreFlight(cfg *Config) error {
	if cfg.Marketplace.Transport == config.TransportGRPC && cfg.Marketplace.TLSCertFile != "" {
		if _, err := os.Stat(cfg.Marketplace.TLSCertFile); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("tls_cert_file not found: %s", cfg.Marketplace.TLSCertFile)
			}
			return err
		}
	}

	if cfg.Journal.Enabled {
		dir := filepath.Dir(cfg.Journal.Path)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("journal directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("journal directory %s is not a directory", dir)
		}
	}

	return nil
}
