package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"TRUSTGRAPH_PORT", "TRUSTGRAPH_METRICS_PORT", "TRUSTGRAPH_ADMIN_TOKEN",
	"TRUSTGRAPH_DATABASE_DRIVER", "TRUSTGRAPH_DATABASE_URL", "TRUSTGRAPH_NATS_URL",
	"TRUSTGRAPH_REDIS_URL", "TRUSTGRAPH_REDIS_TTL_SECONDS", "TRUSTGRAPH_DAMPING_FACTOR",
	"TRUSTGRAPH_ITERATIONS", "TRUSTGRAPH_TOLERANCE", "TRUSTGRAPH_REFRESH_INTERVAL_SECONDS",
	"TRUSTGRAPH_MIN_HIGH_TRUST", "TRUSTGRAPH_SLASHING_RATE",
	"TRUSTGRAPH_LOG_LEVEL", "TRUSTGRAPH_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8700 {
		t.Errorf("expected port 8700, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected metrics port 8701, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.URL != "trustgraph.db" {
		t.Errorf("expected sqlite trustgraph.db, got %s %s", cfg.Database.Driver, cfg.Database.URL)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected nats URL, got %s", cfg.NATS.URL)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.URL)
	}
	if cfg.RedisTTL() != 5*time.Minute {
		t.Errorf("expected RedisTTL 5m, got %v", cfg.RedisTTL())
	}
	if cfg.Ranking.DampingFactor != 0.85 {
		t.Errorf("expected damping 0.85, got %v", cfg.Ranking.DampingFactor)
	}
	if cfg.Ranking.Iterations != 30 {
		t.Errorf("expected 30 iterations, got %d", cfg.Ranking.Iterations)
	}
	if cfg.Ranking.Tolerance != 0 {
		t.Errorf("expected fixed iterations by default, got tolerance %v", cfg.Ranking.Tolerance)
	}
	if cfg.RefreshInterval() != 0 {
		t.Errorf("expected no background refresh, got %v", cfg.RefreshInterval())
	}
	if cfg.Stake.MinHighTrust != 100 || cfg.Stake.SlashingRate != 0.1 {
		t.Errorf("unexpected stake defaults: %+v", cfg.Stake)
	}
	if cfg.Scoring.SampleSize != 10 {
		t.Errorf("expected sample size 10, got %d", cfg.Scoring.SampleSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected log format 'json', got '%s'", cfg.Logging.Format)
	}

	w := cfg.Scoring.Weights
	expected := map[string]float64{
		"honesty": 0.25, "expertise": 0.20, "bias": 0.10, "safety": 0.20,
		"speed": 0.10, "alignment": 0.15, "responsiveness": 0.10,
	}
	actual := map[string]float64{
		"honesty": w.Honesty, "expertise": w.Expertise, "bias": w.Bias, "safety": w.Safety,
		"speed": w.Speed, "alignment": w.Alignment, "responsiveness": w.Responsiveness,
	}
	for name, want := range expected {
		if math.Abs(actual[name]-want) > 0.001 {
			t.Errorf("scoring weight %s: expected %f, got %f", name, want, actual[name])
		}
	}
	if math.Abs(w.Sum()-1.10) > 0.001 {
		t.Errorf("scoring weights sum to %f, expected 1.10", w.Sum())
	}
	if err := w.Validate(); err != nil {
		t.Errorf("default scoring weights rejected: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTGRAPH_PORT", "9000")
	t.Setenv("TRUSTGRAPH_METRICS_PORT", "9001")
	t.Setenv("TRUSTGRAPH_ADMIN_TOKEN", "secret-token")
	t.Setenv("TRUSTGRAPH_DATABASE_DRIVER", "postgres")
	t.Setenv("TRUSTGRAPH_DATABASE_URL", "postgres://localhost/trustgraph_test")
	t.Setenv("TRUSTGRAPH_NATS_URL", "nats://nats:4222")
	t.Setenv("TRUSTGRAPH_REDIS_URL", "redis://redis:6379/0")
	t.Setenv("TRUSTGRAPH_REDIS_TTL_SECONDS", "60")
	t.Setenv("TRUSTGRAPH_DAMPING_FACTOR", "0.9")
	t.Setenv("TRUSTGRAPH_ITERATIONS", "50")
	t.Setenv("TRUSTGRAPH_TOLERANCE", "0.000001")
	t.Setenv("TRUSTGRAPH_REFRESH_INTERVAL_SECONDS", "15")
	t.Setenv("TRUSTGRAPH_MIN_HIGH_TRUST", "250")
	t.Setenv("TRUSTGRAPH_SLASHING_RATE", "0.2")
	t.Setenv("TRUSTGRAPH_LOG_LEVEL", "debug")
	t.Setenv("TRUSTGRAPH_LOG_FORMAT", "text")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 9001 {
		t.Errorf("expected metrics port 9001, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.AdminToken != "secret-token" {
		t.Errorf("expected admin token 'secret-token', got '%s'", cfg.Server.AdminToken)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.URL != "postgres://localhost/trustgraph_test" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("expected nats URL, got '%s'", cfg.NATS.URL)
	}
	if cfg.Redis.URL != "redis://redis:6379/0" || cfg.RedisTTL() != time.Minute {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	opts := cfg.RankingOptions()
	if opts.DampingFactor != 0.9 || opts.Iterations != 50 || opts.Tolerance != 0.000001 {
		t.Errorf("unexpected ranking options: %+v", opts)
	}
	if cfg.RefreshInterval() != 15*time.Second {
		t.Errorf("expected refresh 15s, got %v", cfg.RefreshInterval())
	}
	if cfg.Stake.MinHighTrust != 250 || cfg.Stake.SlashingRate != 0.2 {
		t.Errorf("unexpected stake config: %+v", cfg.Stake)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEmptyNATSURLDisablesEvents(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTGRAPH_NATS_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected empty nats URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "trustgraph.yaml")
	data := `
server:
  port: 9100
ranking:
  iterations: 100
  tolerance: 0.0001
scoring:
  weights:
    honesty: 0.4
    expertise: 0.1
    bias: 0.1
    safety: 0.1
    speed: 0.1
    alignment: 0.1
    responsiveness: 0.1
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected default metrics port to survive, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Ranking.Iterations != 100 || cfg.Ranking.DampingFactor != 0.85 {
		t.Errorf("unexpected ranking config: %+v", cfg.Ranking)
	}
	if cfg.Scoring.Weights.Honesty != 0.4 {
		t.Errorf("expected honesty weight 0.4, got %v", cfg.Scoring.Weights.Honesty)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"damping above one", map[string]string{"TRUSTGRAPH_DAMPING_FACTOR": "1.2"}},
		{"zero iterations", map[string]string{"TRUSTGRAPH_ITERATIONS": "0"}},
		{"negative tolerance", map[string]string{"TRUSTGRAPH_TOLERANCE": "-1"}},
		{"unknown driver", map[string]string{"TRUSTGRAPH_DATABASE_DRIVER": "mysql"}},
		{"slashing rate above one", map[string]string{"TRUSTGRAPH_SLASHING_RATE": "1.5"}},
		{"non-positive stake floor", map[string]string{"TRUSTGRAPH_MIN_HIGH_TRUST": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("scoring:\n  weights:\n    honesty: -0.1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
