// Package config provides configuration management for policysmith commands.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/types"
)

// Config is the full policysmith configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	DataDir  string         `mapstructure:"data_dir" validate:"required"`
}

// ServerConfig holds configuration for the gRPC policy engine service.
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes" validate:"gt=0"`
	// MetricsAddr is the prometheus listen address; empty disables /metrics.
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// DatabaseConfig holds the store connection. URL is sqlite://path or
// postgres://...; empty means commands run without a store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// EngineConfig bounds engine inputs accepted by the service and CLI.
type EngineConfig struct {
	MaxRules    int      `mapstructure:"max_rules" validate:"gt=0"`
	FirmAliases []string `mapstructure:"firm_aliases" validate:"dive,required"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50061,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			MaxMessageBytes: 4 << 20,
			MetricsAddr:     "",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			MaxRules:    types.MaxRulesPerPack,
			FirmAliases: append([]string{}, clauses.DefaultFirmAliases...),
		},
		DataDir: "./data",
	}
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if c.Engine.MaxRules > types.MaxRulesPerPack {
		return fmt.Errorf("engine.max_rules must be at most %d, got %d", types.MaxRulesPerPack, c.Engine.MaxRules)
	}
	if u := c.Database.URL; u != "" && !strings.HasPrefix(u, "sqlite://") &&
		!strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		return fmt.Errorf("database.url must start with sqlite:// or postgres://, got %q", u)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "min", "max", "gt":
			messages = append(messages, fmt.Sprintf("%s must be %s %s, got %v", field, e.Tag(), e.Param(), e.Value()))
		case "hostname_port":
			messages = append(messages, fmt.Sprintf("%s must be a valid host:port", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
