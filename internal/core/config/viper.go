package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PS_SERVER_PORT.
const EnvPrefix = "PS"

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags that were set on the command line override.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_message_bytes", d.Server.MaxMessageBytes)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("engine.max_rules", d.Engine.MaxRules)
	v.SetDefault("engine.firm_aliases", d.Engine.FirmAliases)
	v.SetDefault("data_dir", d.DataDir)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Checked before env binding so only file values are inspected
		if err := validateNoSecretsInConfig(v); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			MaxConnections:  v.GetInt("server.max_connections"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			MaxMessageBytes: v.GetInt("server.max_message_bytes"),
			MetricsAddr:     v.GetString("server.metrics_addr"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Engine: EngineConfig{
			MaxRules:    v.GetInt("engine.max_rules"),
			FirmAliases: v.GetStringSlice("engine.firm_aliases"),
		},
		DataDir: v.GetString("data_dir"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db-url":       "database.url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"host":         "server.host",
	"port":         "server.port",
	"metrics-addr": "server.metrics_addr",
	"data-dir":     "data_dir",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only database credentials.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("database.password") {
		return fmt.Errorf("database credentials not allowed in config files (use PS_DATABASE_URL environment variable)")
	}
	raw := v.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database.url in config file: %w", err)
	}
	if _, ok := u.User.Password(); ok {
		return fmt.Errorf("database credentials not allowed in config files (use PS_DATABASE_URL environment variable)")
	}
	return nil
}
