// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Tokens        TokensConfig       `mapstructure:"tokens"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// LedgerConfig configures the recycling ledger
type LedgerConfig struct {
	ProgramID      string        `mapstructure:"program_id"`
	AuthoritySeed  string        `mapstructure:"authority_seed"`
	RewardMint     string        `mapstructure:"reward_mint"`
	ReserveAccount string        `mapstructure:"reserve_account"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
}

// TokenAccountSeed is an account preloaded into the memory token backend
type TokenAccountSeed struct {
	Address string `mapstructure:"address"`
	Mint    string `mapstructure:"mint"`
	Owner   string `mapstructure:"owner"`
	Balance uint64 `mapstructure:"balance"`
}

// TokensConfig selects and configures the external token ledger
type TokensConfig struct {
	Backend        string             `mapstructure:"backend"` // memory, remote
	Endpoint       string             `mapstructure:"endpoint"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	Accounts       []TokenAccountSeed `mapstructure:"accounts"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// RECYCLE_LEDGER_REWARD_MINT overrides ledger.reward_mint, etc.
	v.SetEnvPrefix("RECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintln(os.Stderr, "Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "token-recycle")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/recycle.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("ledger.program_id", "0x00000000000000000000000000000000000000a1")
	v.SetDefault("ledger.authority_seed", "program-authority")
	v.SetDefault("ledger.reward_mint", "")
	v.SetDefault("ledger.reserve_account", "")
	v.SetDefault("ledger.lock_timeout", "5s")

	v.SetDefault("tokens.backend", "memory")
	v.SetDefault("tokens.endpoint", "")
	v.SetDefault("tokens.request_timeout", "10s")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.queue_size", 100)
	v.SetDefault("notifications.workers", 2)
	v.SetDefault("notifications.poll_interval", "30s")
	v.SetDefault("notifications.max_retries", 5)
	v.SetDefault("notifications.retry_delay", "2s")
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.webhook_timeout", "10s")
	v.SetDefault("notifications.log_events", true)

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	switch strings.ToLower(c.Storage.Type) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}

	for field, value := range map[string]string{
		"ledger.program_id":      c.Ledger.ProgramID,
		"ledger.reward_mint":     c.Ledger.RewardMint,
		"ledger.reserve_account": c.Ledger.ReserveAccount,
	} {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s must be a hex address, got %q", field, value)
		}
	}
	if c.Ledger.AuthoritySeed == "" {
		return fmt.Errorf("ledger authority seed is required")
	}
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("ledger lock timeout must be positive")
	}

	switch c.Tokens.Backend {
	case "memory":
		for i, acc := range c.Tokens.Accounts {
			if !common.IsHexAddress(acc.Address) || !common.IsHexAddress(acc.Mint) || !common.IsHexAddress(acc.Owner) {
				return fmt.Errorf("tokens.accounts[%d] has an invalid address", i)
			}
		}
	case "remote":
		if c.Tokens.Endpoint == "" {
			return fmt.Errorf("tokens endpoint is required for the remote backend")
		}
	default:
		return fmt.Errorf("unsupported tokens backend %q", c.Tokens.Backend)
	}

	if c.Notifications.Enabled {
		if c.Notifications.Workers <= 0 {
			return fmt.Errorf("notification workers must be positive")
		}
		if c.Notifications.QueueSize <= 0 {
			return fmt.Errorf("notification queue size must be positive")
		}
		if c.Notifications.PollInterval <= 0 {
			return fmt.Errorf("notification poll interval must be positive")
		}
	}
	return nil
}
