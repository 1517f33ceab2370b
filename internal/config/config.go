package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/perculacms/aicore/internal/types"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	AI        AIConfig        `yaml:"ai"`
	Agents    AgentsConfig    `yaml:"agents"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// MigrateURL returns the database URL in the form golang-migrate expects.
func (d DatabaseConfig) MigrateURL() string {
	if d.Driver == DriverSQLite {
		return "sqlite://" + d.Path
	}
	return d.DSN()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	MetricsPort   int    `yaml:"metrics_port"`
}

type AIConfig struct {
	DefaultPrimary    string                  `yaml:"default_primary"`
	DefaultSecondary  string                  `yaml:"default_secondary"`
	DefaultAgentLabel string                  `yaml:"default_agent_label"`
	AdapterTimeout    time.Duration           `yaml:"adapter_timeout"`
	Vendors           map[string]VendorConfig `yaml:"vendors"`
}

// DefaultVendors returns the vendor preference order used when a call
// carries no hints.
func (a AIConfig) DefaultVendors() ([]types.VendorType, error) {
	var out []types.VendorType
	for _, name := range []string{a.DefaultPrimary, a.DefaultSecondary} {
		if name == "" {
			continue
		}
		v, ok := types.ParseVendorType(name)
		if !ok {
			return nil, fmt.Errorf("unknown default vendor %q", name)
		}
		out = append(out, v)
	}
	return out, nil
}

type AgentsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type RateLimitConfig struct {
	DefaultRPM int `yaml:"default_rpm"`
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := c.AI.DefaultVendors(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if _, err := c.AI.VendorOptions(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if c.AI.AdapterTimeout <= 0 {
		return fmt.Errorf("ai.adapter_timeout must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "aicore.db",
			Host:            "localhost",
			Port:            5432,
			Name:            "perculacms",
			User:            "perculacms",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			LogMaxSizeMB:  100,
			LogMaxAgeDays: 7,
			MetricsPort:   9090,
		},
		AI: AIConfig{
			DefaultPrimary:    string(types.VendorOpenAI),
			DefaultSecondary:  string(types.VendorGemini),
			DefaultAgentLabel: "core.ai",
			AdapterTimeout:    60 * time.Second,
		},
		Agents: AgentsConfig{
			Dir:   "agents",
			Watch: true,
		},
		RateLimit: RateLimitConfig{
			DefaultRPM: 60,
		},
	}
}
