package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Environment string
	Port        string
	GRPCPort    string

	DBDriver    string
	SQLiteFile  string
	DatabaseURL string

	NATSURL     string
	NATSSubject string
	NATSMode    string // "embedded", "external" or "mock"; empty picks by environment

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string

	MaxBet float64

	Valuation valuation.Config
}

// IsDevelopment reports whether the service runs without external infrastructure
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Load reads configuration from the environment. When VALUATION_CONFIG
// names a YAML file, its values override the default valuation constants.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: os.Getenv("ENVIRONMENT"),
		Port:        getEnv("PORT", "3000"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),

		DBDriver:    getEnv("DB_DRIVER", "memory"),
		SQLiteFile:  getEnv("SQLITE_FILE", "dev.sqlite"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: getEnv("NATS_SUBJECT", "line.events"),
		NATSMode:    os.Getenv("NATS_MODE"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:       getEnv("CLICKHOUSE_DB", "default"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxBet, err = getEnvFloat("MAX_BET", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxBet <= 0 {
		return nil, fmt.Errorf("MAX_BET must be positive, got %v", cfg.MaxBet)
	}

	cfg.Valuation, err = LoadValuation(os.Getenv("VALUATION_CONFIG"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadValuation returns the default valuation constants overlaid with the
// YAML file at path. An empty path yields the defaults.
func LoadValuation(path string) (valuation.Config, error) {
	cfg := valuation.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return valuation.Config{}, fmt.Errorf("failed to read valuation config: %w", err)
	}

	return ParseValuation(data)
}

// ParseValuation overlays YAML data on the default valuation constants.
// A rank_multipliers table in the file replaces the default table.
func ParseValuation(data []byte) (valuation.Config, error) {
	cfg := valuation.DefaultConfig()
	defaults := cfg.RankMultipliers
	cfg.RankMultipliers = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return valuation.Config{}, fmt.Errorf("failed to parse valuation config: %w", err)
	}
	if cfg.RankMultipliers == nil {
		cfg.RankMultipliers = defaults
	}

	if err := cfg.Validate(); err != nil {
		return valuation.Config{}, fmt.Errorf("invalid valuation config: %w", err)
	}

	return cfg.Clone(), nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a finite number, got %q", key, v)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
