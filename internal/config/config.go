// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Transport names
const (
	TransportSandbox = "sandbox"
	TransportJSONRPC = "jsonrpc"
	TransportGRPC    = "grpc"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Bank        BankConfig        `yaml:"bank"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Observer    ObserverConfig    `yaml:"observer"`
	Journal     JournalConfig     `yaml:"journal"`
}

// AppConfig contains participant-level settings
type AppConfig struct {
	Username     string  `yaml:"username"`      // Optional: register on startup
	DisplayName  string  `yaml:"display_name"`  // Shown to other participants, defaults to username
	InitialFunds float64 `yaml:"initial_funds"` // Deposited into freshly created accounts
	WishPolicy   string  `yaml:"wish_policy"`   // highest_max, lowest_max or first
}

// BankConfig selects and configures the bank gateway
type BankConfig struct {
	Transport      string        `yaml:"transport"`
	URL            string        `yaml:"url"` // ws:// or http:// JSON-RPC endpoint
	Token          Secret        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// MarketplaceConfig selects and configures the marketplace gateway
type MarketplaceConfig struct {
	Transport         string        `yaml:"transport"`
	Name              string        `yaml:"name"`
	Address           string        `yaml:"address"`            // gRPC target
	CallbackListen    string        `yaml:"callback_listen"`    // Local address for the callback server
	CallbackAdvertise string        `yaml:"callback_advertise"` // Address the marketplace dials back, defaults to the bound address
	TLSCertFile       string        `yaml:"tls_cert_file"`
	TLSServerName     string        `yaml:"tls_server_name"`
	APIKey            Secret        `yaml:"api_key"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ConcurrencyConfig contains worker pool and mailbox settings
type ConcurrencyConfig struct {
	RemotePoolSize   int `yaml:"remote_pool_size"`
	RemotePoolBuffer int `yaml:"remote_pool_buffer"`
	MailboxBuffer    int `yaml:"mailbox_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enable      bool   `yaml:"enable"`
	MetricsPort int    `yaml:"metrics_port"`
	TraceFile   string `yaml:"trace_file"` // Spans and log records; empty discards them
}

// ObserverConfig configures the websocket observer feed
type ObserverConfig struct {
	Listen         string   `yaml:"listen"` // Empty disables the feed
	AllowedOrigins []string `yaml:"allowed_origins"`
	Production     bool     `yaml:"production"`
}

// JournalConfig configures the activity journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Fields absent from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML content on top of the defaults
func ParseConfig(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	checks := []func() error{
		c.validateAppConfig,
		c.validateBankConfig,
		c.validateMarketplaceConfig,
		c.validateSystemConfig,
		c.validateConcurrencyConfig,
		c.validateJournalConfig,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.InitialFunds < 0 {
		return ValidationError{
			Field:   "app.initial_funds",
			Value:   c.App.InitialFunds,
			Message: "must not be negative",
		}
	}

	validPolicies := []string{"highest_max", "lowest_max", "first"}
	if !contains(validPolicies, c.App.WishPolicy) {
		return ValidationError{
			Field:   "app.wish_policy",
			Value:   c.App.WishPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validPolicies, ", ")),
		}
	}
	return nil
}

func (c *Config) validateBankConfig() error {
	switch c.Bank.Transport {
	case TransportSandbox:
		return nil
	case TransportJSONRPC:
		if c.Bank.URL == "" {
			return ValidationError{
				Field:   "bank.url",
				Message: "url is required for the jsonrpc transport",
			}
		}
		if c.Bank.MaxRetries < 0 {
			return ValidationError{
				Field:   "bank.max_retries",
				Value:   c.Bank.MaxRetries,
				Message: "must not be negative",
			}
		}
		return nil
	default:
		return ValidationError{
			Field:   "bank.transport",
			Value:   c.Bank.Transport,
			Message: fmt.Sprintf("must be one of: %s, %s", TransportSandbox, TransportJSONRPC),
		}
	}
}

func (c *Config) validateMarketplaceConfig() error {
	switch c.Marketplace.Transport {
	case TransportSandbox:
		if c.Bank.Transport != TransportSandbox {
			return ValidationError{
				Field:   "marketplace.transport",
				Value:   c.Marketplace.Transport,
				Message: "the sandbox marketplace settles through the sandbox bank",
			}
		}
		return nil
	case TransportGRPC:
		if c.Marketplace.Address == "" {
			return ValidationError{
				Field:   "marketplace.address",
				Message: "address is required for the grpc transport",
			}
		}
		if c.Marketplace.CallbackListen == "" {
			return ValidationError{
				Field:   "marketplace.callback_listen",
				Message: "callback listen address is required for the grpc transport",
			}
		}
		return nil
	default:
		return ValidationError{
			Field:   "marketplace.transport",
			Value:   c.Marketplace.Transport,
			Message: fmt.Sprintf("must be one of: %s, %s", TransportSandbox, TransportGRPC),
		}
	}
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}

	validFormats := []string{"console", "json"}
	if !contains(validFormats, strings.ToLower(c.System.LogFormat)) {
		return ValidationError{
			Field:   "system.log_format",
			Value:   c.System.LogFormat,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validFormats, ", ")),
		}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.RemotePoolSize < 1 || c.Concurrency.RemotePoolSize > 100 {
		return ValidationError{
			Field:   "concurrency.remote_pool_size",
			Value:   c.Concurrency.RemotePoolSize,
			Message: "must be between 1 and 100",
		}
	}
	if c.Concurrency.MailboxBuffer < 1 {
		return ValidationError{
			Field:   "concurrency.mailbox_buffer",
			Value:   c.Concurrency.MailboxBuffer,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateJournalConfig() error {
	if c.Journal.Enabled && c.Journal.Path == "" {
		return ValidationError{
			Field:   "journal.path",
			Message: "path is required when the journal is enabled",
		}
	}
	return nil
}

// InitialFundsDecimal returns the opening deposit as a decimal
func (c *Config) InitialFundsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.App.InitialFunds)
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration running against the in-process sandbox
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			InitialFunds: 1000,
			WishPolicy:   "highest_max",
		},
		Bank: BankConfig{
			Transport:      TransportSandbox,
			RequestTimeout: 10 * time.Second,
			MaxRetries:     3,
		},
		Marketplace: MarketplaceConfig{
			Transport:      TransportSandbox,
			Name:           "sandbox",
			CallbackListen: "127.0.0.1:0",
			RequestTimeout: 10 * time.Second,
		},
		System: SystemConfig{
			LogLevel:  "INFO",
			LogFormat: "console",
		},
		Concurrency: ConcurrencyConfig{
			RemotePoolSize:   8,
			RemotePoolBuffer: 64,
			MailboxBuffer:    256,
		},
		Telemetry: TelemetryConfig{
			MetricsPort: 9090,
		},
		Journal: JournalConfig{
			Path: "market_client.db",
		},
	}
}
