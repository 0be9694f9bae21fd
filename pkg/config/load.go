package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It decodes on top of Default, applies remaining defaults, and validates.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TRIALMONITOR_SECTION_FIELD (e.g., TRIALMONITOR_SERVER_LISTEN_ADDRESS).
// ANTHROPIC_API_KEY fills reasoning.api_key when it is not set otherwise.
//
// An empty path skips the file and starts from Default.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	setString(&cfg.Server.ListenAddress, "TRIALMONITOR_SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "TRIALMONITOR_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "TRIALMONITOR_SERVER_WRITE_TIMEOUT")

	// Engine overrides
	setInt(&cfg.Engine.MaxRounds, "TRIALMONITOR_ENGINE_MAX_ROUNDS")
	setInt(&cfg.Engine.MaxToolCalls, "TRIALMONITOR_ENGINE_MAX_TOOL_CALLS")
	setDuration(&cfg.Engine.RoundTimeout, "TRIALMONITOR_ENGINE_ROUND_TIMEOUT")
	setInt(&cfg.Engine.RuleConcurrency, "TRIALMONITOR_ENGINE_RULE_CONCURRENCY")

	// Reasoning overrides
	setString(&cfg.Reasoning.BaseURL, "TRIALMONITOR_REASONING_BASE_URL")
	setString(&cfg.Reasoning.Model, "TRIALMONITOR_REASONING_MODEL")
	setString(&cfg.Reasoning.APIKey, "TRIALMONITOR_REASONING_API_KEY")
	setInt(&cfg.Reasoning.MaxConcurrent, "TRIALMONITOR_REASONING_MAX_CONCURRENT")
	setInt(&cfg.Reasoning.RequestsPerMinute, "TRIALMONITOR_REASONING_REQUESTS_PER_MINUTE")
	if cfg.Reasoning.APIKey == "" {
		cfg.Reasoning.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	// Clinical overrides
	setString(&cfg.Clinical.Driver, "TRIALMONITOR_CLINICAL_DRIVER")
	setString(&cfg.Clinical.DSN, "TRIALMONITOR_CLINICAL_DSN")

	// Ledger overrides
	setString(&cfg.Ledger.Backend, "TRIALMONITOR_LEDGER_BACKEND")
	setString(&cfg.Ledger.SQLite.Path, "TRIALMONITOR_LEDGER_SQLITE_PATH")

	// Rules overrides
	setString(&cfg.Rules.Path, "TRIALMONITOR_RULES_PATH")
	setString(&cfg.Rules.TemplatesPath, "TRIALMONITOR_RULES_TEMPLATES_PATH")
	setBool(&cfg.Rules.Watch, "TRIALMONITOR_RULES_WATCH")

	// Jobs overrides
	setInt(&cfg.Jobs.SubjectConcurrency, "TRIALMONITOR_JOBS_SUBJECT_CONCURRENCY")
	setString(&cfg.Jobs.Schedule, "TRIALMONITOR_JOBS_SCHEDULE")

	// Notify overrides
	setBool(&cfg.Notify.Enabled, "TRIALMONITOR_NOTIFY_ENABLED")
	setString(&cfg.Notify.NATSURL, "TRIALMONITOR_NOTIFY_NATS_URL")

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "TRIALMONITOR_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "TRIALMONITOR_TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "TRIALMONITOR_TELEMETRY_METRICS_ENABLED")
	setBool(&cfg.Telemetry.Tracing.Enabled, "TRIALMONITOR_TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "TRIALMONITOR_TELEMETRY_TRACING_ENDPOINT")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
