// Package config loads the service settings from SALES_* environment
// variables.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "sales"

const (
	StorageMemory = "memory"
	StorageMySQL  = "mysql"
)

// MySQLConfig holds the connection and pool settings of the MySQL store.
type MySQLConfig struct {
	DSN             string        `envconfig:"DSN"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
}

type Config struct {
	Env               string        `envconfig:"ENV" default:"development"`
	Port              string        `envconfig:"PORT" default:"8081"`
	Storage           string        `envconfig:"STORAGE" default:"memory"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	TopCustomersLimit int           `envconfig:"TOP_CUSTOMERS_LIMIT" default:"10"`
	Seed              bool          `envconfig:"SEED" default:"false"`
	MySQL             MySQLConfig   `envconfig:"MYSQL"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageMySQL:
		if c.MySQL.DSN == "" {
			return errors.New("SALES_MYSQL_DSN is required when SALES_STORAGE=mysql")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.TopCustomersLimit < 1 {
		return errors.Errorf("top customers limit must be positive, got %d", c.TopCustomersLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger builds the process logger: JSON output in production, console
// output everywhere else.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	zc := zap.NewDevelopmentConfig()
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger.With(zap.String("env", c.Env)), nil
}
