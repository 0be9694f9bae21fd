package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: "45s"

engine:
  max_rounds: 3
  max_tool_calls: 6

reasoning:
  model: "claude-test"
  pricing:
    claude-test:
      input: 1.5
      output: 7.5

ledger:
  backend: "memory"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9000", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout %v, got %v", 45*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Engine.MaxRounds != 3 {
		t.Errorf("expected max rounds 3, got %d", cfg.Engine.MaxRounds)
	}
	if cfg.Engine.RoundTimeout != DefaultRoundTimeout {
		t.Errorf("expected default round timeout, got %v", cfg.Engine.RoundTimeout)
	}
	if cfg.Reasoning.Pricing["claude-test"].Output != 7.5 {
		t.Errorf("expected output price 7.5, got %v", cfg.Reasoning.Pricing["claude-test"].Output)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Ledger.Backend)
	}
	if !cfg.Ledger.SQLite.WALMode {
		t.Error("expected WAL mode to keep its default of true")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	path := writeConfig(t, `
ledger:
  backend: "postgres"
clinical:
  driver: "oracle"
jobs:
  schedule: "not a cron"
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := make(map[string]bool)
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"ledger.backend", "clinical.driver", "jobs.schedule"} {
		if !fields[want] {
			t.Errorf("expected field error for %s, got %v", want, verr.Errors)
		}
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_rounds: 3
`)

	t.Setenv("TRIALMONITOR_ENGINE_MAX_ROUNDS", "7")
	t.Setenv("TRIALMONITOR_LEDGER_BACKEND", "memory")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Engine.MaxRounds != 7 {
		t.Errorf("expected env override of max rounds to 7, got %d", cfg.Engine.MaxRounds)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Ledger.Backend)
	}
	if cfg.Reasoning.APIKey != "sk-test" {
		t.Errorf("expected API key from ANTHROPIC_API_KEY, got %q", cfg.Reasoning.APIKey)
	}
}

func TestLoadConfigWithEnvOverrides_EmptyPath(t *testing.T) {
	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxRounds != DefaultMaxRounds {
		t.Errorf("expected default max rounds, got %d", cfg.Engine.MaxRounds)
	}
}

func TestValidate_SubjectConcurrencyCappedByReasoning(t *testing.T) {
	cfg := Default()
	cfg.Reasoning.MaxConcurrent = 2
	cfg.Jobs.SubjectConcurrency = 3

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "jobs.subject_concurrency") {
		t.Errorf("expected subject concurrency error, got %v", err)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestInitialize_KeepsPreviousOnError(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	path := writeConfig(t, "ledger:\n  backend: \"memory\"\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	first := GetConfig()
	if first == nil || first.Ledger.Backend != "memory" {
		t.Fatalf("GetConfig() = %+v", first)
	}

	if err := Initialize(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if GetConfig() != first {
		t.Error("failed Initialize replaced the configuration")
	}
}
