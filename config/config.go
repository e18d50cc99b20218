package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// EngineConfig holds the tunable knobs of the matching and pricing engine.
// Every value has a default matching the documented engine behavior; ops
// can tighten or loosen them per deployment without a code change.
type EngineConfig struct {
	StatsWindowDays      int           `mapstructure:"ENGINE_STATS_WINDOW_DAYS"`      // historical lookback for route stats
	StatsCacheTTL        time.Duration `mapstructure:"ENGINE_STATS_CACHE_TTL"`        // route stats cache
	WeightsCacheTTL      time.Duration `mapstructure:"ENGINE_WEIGHTS_CACHE_TTL"`      // learned weight vector cache
	QuoteValidity        time.Duration `mapstructure:"ENGINE_QUOTE_VALIDITY"`         // quote validity window
	DemandWindowDays     int           `mapstructure:"ENGINE_DEMAND_WINDOW_DAYS"`     // trailing window for supply/demand counts
	RecalibrateEvery     int           `mapstructure:"ENGINE_RECALIBRATE_EVERY"`      // feedback events per recalibration
	MinAcceptedToLearn   int           `mapstructure:"ENGINE_MIN_ACCEPTED_TO_LEARN"`  // cold-start threshold
	BatchRequestCap      int           `mapstructure:"ENGINE_BATCH_REQUEST_CAP"`      // max freight requests per batch sweep
	BatchReportThreshold float64       `mapstructure:"ENGINE_BATCH_REPORT_THRESHOLD"` // min best score to report
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "freightmatch")
	viper.SetDefault("POSTGRES_PASSWORD", "freightmatch_secret")
	viper.SetDefault("POSTGRES_DB", "freightmatch_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("ENGINE_STATS_WINDOW_DAYS", 90)
	viper.SetDefault("ENGINE_STATS_CACHE_TTL", "30m")
	viper.SetDefault("ENGINE_WEIGHTS_CACHE_TTL", "1h")
	viper.SetDefault("ENGINE_QUOTE_VALIDITY", "6h")
	viper.SetDefault("ENGINE_DEMAND_WINDOW_DAYS", 7)
	viper.SetDefault("ENGINE_RECALIBRATE_EVERY", 50)
	viper.SetDefault("ENGINE_MIN_ACCEPTED_TO_LEARN", 30)
	viper.SetDefault("ENGINE_BATCH_REQUEST_CAP", 200)
	viper.SetDefault("ENGINE_BATCH_REPORT_THRESHOLD", 65)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Engine ──────────────────────────────────────────
	cfg.Engine = EngineConfig{
		StatsWindowDays:      viper.GetInt("ENGINE_STATS_WINDOW_DAYS"),
		StatsCacheTTL:        viper.GetDuration("ENGINE_STATS_CACHE_TTL"),
		WeightsCacheTTL:      viper.GetDuration("ENGINE_WEIGHTS_CACHE_TTL"),
		QuoteValidity:        viper.GetDuration("ENGINE_QUOTE_VALIDITY"),
		DemandWindowDays:     viper.GetInt("ENGINE_DEMAND_WINDOW_DAYS"),
		RecalibrateEvery:     viper.GetInt("ENGINE_RECALIBRATE_EVERY"),
		MinAcceptedToLearn:   viper.GetInt("ENGINE_MIN_ACCEPTED_TO_LEARN"),
		BatchRequestCap:      viper.GetInt("ENGINE_BATCH_REQUEST_CAP"),
		BatchReportThreshold: viper.GetFloat64("ENGINE_BATCH_REPORT_THRESHOLD"),
	}

	return cfg, nil
}
