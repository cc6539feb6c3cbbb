package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
kafka:
  brokers: ["localhost:9092"]
postgres:
  dsn: "postgres://localhost/test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kafka.EventLogTopic != "CoreEventLogTopic" {
		t.Errorf("expected default event log topic, got %q", cfg.Kafka.EventLogTopic)
	}
	if cfg.RPC.SubmitListenAddr != "0.0.0.0:8991" {
		t.Errorf("expected default submit listen addr, got %q", cfg.RPC.SubmitListenAddr)
	}
	if cfg.Postgres.MaxRetries != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.Postgres.MaxRetries)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	path := writeTestConfig(t, `
logging:
  level: debug
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing kafka.brokers and postgres.dsn")
	}
}

func TestValidate_RequiresBrokersAndDSN(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing postgres dsn")
	}

	cfg.Postgres.DSN = "postgres://localhost/test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}
