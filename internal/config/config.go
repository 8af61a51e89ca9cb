package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Redis    RedisConfig    `yaml:"redis"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Stake    StakeConfig    `yaml:"stake"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL        string `yaml:"url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type RankingConfig struct {
	DampingFactor          float64 `yaml:"damping_factor"`
	Iterations             int     `yaml:"iterations"`
	Tolerance              float64 `yaml:"tolerance"`
	RefreshIntervalSeconds int     `yaml:"refresh_interval_seconds"`
}

type StakeConfig struct {
	MinHighTrust float64 `yaml:"min_high_trust"`
	SlashingRate float64 `yaml:"slashing_rate"`
}

type ScoringConfig struct {
	Weights    trust.DimensionWeights `yaml:"weights"`
	SampleSize int                    `yaml:"sample_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Ranking.RefreshIntervalSeconds) * time.Second
}

// RankingOptions converts the ranking section for the engine.
func (c *Config) RankingOptions() ranking.Options {
	return ranking.Options{
		DampingFactor: c.Ranking.DampingFactor,
		Iterations:    c.Ranking.Iterations,
		Tolerance:     c.Ranking.Tolerance,
	}
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "trustgraph.db",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Redis: RedisConfig{
			TTLSeconds: 300,
		},
		Ranking: RankingConfig{
			DampingFactor: ranking.DefaultDampingFactor,
			Iterations:    30,
		},
		Stake: StakeConfig{
			MinHighTrust: 100,
			SlashingRate: 0.1,
		},
		Scoring: ScoringConfig{
			Weights:    trust.DefaultWeights(),
			SampleSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ledger cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if err := c.RankingOptions().Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if c.Ranking.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("ranking.refresh_interval_seconds must not be negative")
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Stake.MinHighTrust <= 0 {
		return fmt.Errorf("stake.min_high_trust must be positive, got %v", c.Stake.MinHighTrust)
	}
	if c.Stake.SlashingRate <= 0 || c.Stake.SlashingRate > 1 {
		return fmt.Errorf("stake.slashing_rate must be in (0, 1], got %v", c.Stake.SlashingRate)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRUSTGRAPH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("TRUSTGRAPH_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("TRUSTGRAPH_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("TRUSTGRAPH_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TRUSTGRAPH_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v, ok := os.LookupEnv("TRUSTGRAPH_NATS_URL"); ok {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("TRUSTGRAPH_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TRUSTGRAPH_REDIS_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.TTLSeconds = n
		}
	}
	if v := os.Getenv("TRUSTGRAPH_DAMPING_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.DampingFactor = f
		}
	}
	if v := os.Getenv("TRUSTGRAPH_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.Iterations = n
		}
	}
	if v := os.Getenv("TRUSTGRAPH_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.Tolerance = f
		}
	}
	if v := os.Getenv("TRUSTGRAPH_REFRESH_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.RefreshIntervalSeconds = n
		}
	}
	if v := os.Getenv("TRUSTGRAPH_MIN_HIGH_TRUST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Stake.MinHighTrust = f
		}
	}
	if v := os.Getenv("TRUSTGRAPH_SLASHING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Stake.SlashingRate = f
		}
	}
	if v := os.Getenv("TRUSTGRAPH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRUSTGRAPH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
