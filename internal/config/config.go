// Package config loads the process configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	JWTSecret  string `yaml:"jwt_secret"`

	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		OpTimeout time.Duration `yaml:"op_timeout"`
	} `yaml:"redis"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	Auction struct {
		Duration         time.Duration `yaml:"duration"`
		LockTTL          time.Duration `yaml:"lock_ttl"`
		SweepInterval    time.Duration `yaml:"sweep_interval"`
		SessionRetention time.Duration `yaml:"session_retention"`
	} `yaml:"auction"`

	Bus struct {
		Backend string `yaml:"backend"` // "redis" (default) or "nats"
		NATSURL string `yaml:"nats_url"`
	} `yaml:"bus"`
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User, c.Postgres.Password, c.Postgres.Host, c.Postgres.Port,
		c.Postgres.Database, c.Postgres.SSLMode)
}

// Load reads path (skipped when empty or missing) and applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)

	c.Postgres.Host = getEnv("DB_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnvAsInt("DB_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("DB_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("DB_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnv("DB_NAME", c.Postgres.Database)
	c.Postgres.SSLMode = getEnv("DB_SSLMODE", c.Postgres.SSLMode)

	c.Auction.Duration = getEnvAsDuration("AUCTION_DURATION", c.Auction.Duration)
	c.Auction.LockTTL = getEnvAsDuration("AUCTION_LOCK_TTL", c.Auction.LockTTL)
	c.Auction.SweepInterval = getEnvAsDuration("AUCTION_SWEEP_INTERVAL", c.Auction.SweepInterval)
	c.Auction.SessionRetention = getEnvAsDuration("AUCTION_SESSION_RETENTION", c.Auction.SessionRetention)

	c.Bus.Backend = getEnv("BUS_BACKEND", c.Bus.Backend)
	c.Bus.NATSURL = getEnv("NATS_URL", c.Bus.NATSURL)
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.OpTimeout <= 0 {
		c.Redis.OpTimeout = 2 * time.Second
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "postgres"
	}
	if c.Postgres.Password == "" {
		c.Postgres.Password = "postgres"
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "auctiond"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Auction.Duration <= 0 {
		c.Auction.Duration = 5 * time.Minute
	}
	if c.Auction.LockTTL <= 0 {
		c.Auction.LockTTL = 3 * time.Second
	}
	if c.Auction.SweepInterval <= 0 {
		c.Auction.SweepInterval = time.Minute
	}
	if c.Auction.SessionRetention <= 0 {
		c.Auction.SessionRetention = 24 * time.Hour
	}
	if c.Bus.Backend == "" {
		c.Bus.Backend = "redis"
	}
	if c.Bus.NATSURL == "" {
		c.Bus.NATSURL = "nats://localhost:4222"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
