package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Fusion.CorrelationRadiusKm != 0.5 {
		t.Errorf("correlation radius = %v, want 0.5", cfg.Fusion.CorrelationRadiusKm)
	}
	if cfg.Fusion.TimeWindowHours != 1.0 {
		t.Errorf("time window = %v, want 1.0", cfg.Fusion.TimeWindowHours)
	}
	if cfg.MQTT.Topic != "tracking/+/position" {
		t.Errorf("mqtt topic = %q", cfg.MQTT.Topic)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9090"
  gracefulTimeout: 5s
database:
  host: db.internal
  port: 5433
fusion:
  correlationRadiusKm: 1.5
logging:
  level: debug
  json: true
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Server.GracefulTimeout != 5*time.Second {
		t.Errorf("graceful timeout = %v", cfg.Server.GracefulTimeout)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Fusion.CorrelationRadiusKm != 1.5 {
		t.Errorf("correlation radius = %v", cfg.Fusion.CorrelationRadiusKm)
	}
	// Untouched sections keep their defaults.
	if cfg.Fusion.TimeWindowHours != 1.0 {
		t.Errorf("time window = %v, want default 1.0", cfg.Fusion.TimeWindowHours)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_FUSION_SERVER_ADDRESS", ":7070")
	t.Setenv("AEGIS_FUSION_DB_PORT", "6000")
	t.Setenv("AEGIS_FUSION_REDIS_ENABLED", "true")
	t.Setenv("AEGIS_FUSION_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Database.Port != 6000 {
		t.Errorf("db port = %d", cfg.Database.Port)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should be enabled")
	}
	if !cfg.Logging.JSON {
		t.Error("logging should be json")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=h port=5432 user=u password=p dbname=d sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
