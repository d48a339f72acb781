package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

const (
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 8000
	defaultStoreBackend       = backendDuckDB
	defaultQueryTimeout       = model.DefaultQueryTimeout
	defaultMaxConcurrentReads = 8
	defaultPageSize           = model.DefaultPageSize
	defaultMaxPageSize        = model.MaxPageSize
	defaultMaxTimeBuckets     = model.DefaultMaxTimeBuckets
	defaultLogRetention       = 0 // days, 0 = disabled
)

const (
	backendDuckDB = "duckdb"
	backendMemory = "memory"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host               string        `mapstructure:"host"`
	APIPort            int           `mapstructure:"api-port"`
	APIAddr            string        `mapstructure:"api-addr"`
	StoreBackend       string        `mapstructure:"store-backend"`
	DBPath             string        `mapstructure:"db-path"`
	QueryTimeout       time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads int           `mapstructure:"max-concurrent-queries"`
	DefaultPageSize    int           `mapstructure:"default-page-size"`
	MaxPageSize        int           `mapstructure:"max-page-size"`
	MaxTimeBuckets     int           `mapstructure:"max-time-buckets"`
	LogRetention       int           `mapstructure:"log-retention"`
	MetricsEnabled     bool          `mapstructure:"metrics-enabled"`
	ConfigPath         string        `mapstructure:"-"` // not from config file
}

// queryConfig is the explicit engine configuration derived from cfg.
func (c appConfig) queryConfig() query.Config {
	return query.Config{
		DefaultPageSize: c.DefaultPageSize,
		MaxPageSize:     c.MaxPageSize,
		SeverityOrder:   model.SeverityOrder(),
		MaxTimeBuckets:  c.MaxTimeBuckets,
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "logboard", "logboard.duckdb")

	v := viper.New()
	v.SetEnvPrefix("LOGBOARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("store-backend", defaultStoreBackend)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("default-page-size", defaultPageSize)
	v.SetDefault("max-page-size", defaultMaxPageSize)
	v.SetDefault("max-time-buckets", defaultMaxTimeBuckets)
	v.SetDefault("log-retention", defaultLogRetention)
	v.SetDefault("metrics-enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "logboard", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in db-path
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (c *appConfig) validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	if c.StoreBackend != backendDuckDB && c.StoreBackend != backendMemory {
		return fmt.Errorf("invalid store-backend: %q (want %s or %s)", c.StoreBackend, backendDuckDB, backendMemory)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("invalid query-timeout: %s", c.QueryTimeout)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("invalid max-page-size: %d", c.MaxPageSize)
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("invalid default-page-size: %d (must be 1..%d)", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.MaxTimeBuckets <= 0 {
		return fmt.Errorf("invalid max-time-buckets: %d", c.MaxTimeBuckets)
	}
	if c.LogRetention < 0 {
		return fmt.Errorf("invalid log-retention: %d", c.LogRetention)
	}
	return nil
}
