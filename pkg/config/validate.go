package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "engine.max_rounds").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateReasoning(&cfg.Reasoning)...)
	errs = append(errs, validateClinical(&cfg.Clinical)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateJobs(&cfg.Jobs, &cfg.Reasoning)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout cannot be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout cannot be negative"})
	}

	return errs
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxRounds < 1 {
		errs = append(errs, FieldError{Field: "engine.max_rounds", Message: "max rounds must be at least 1"})
	}
	if cfg.MaxToolCalls < 1 {
		errs = append(errs, FieldError{Field: "engine.max_tool_calls", Message: "max tool calls must be at least 1"})
	}
	if cfg.RoundTimeout <= 0 {
		errs = append(errs, FieldError{Field: "engine.round_timeout", Message: "round timeout must be positive"})
	}
	if cfg.RuleConcurrency < 1 {
		errs = append(errs, FieldError{Field: "engine.rule_concurrency", Message: "rule concurrency must be at least 1"})
	}

	return errs
}

func validateReasoning(cfg *ReasoningConfig) []FieldError {
	var errs []FieldError

	if cfg.Provider != "anthropic" {
		errs = append(errs, FieldError{
			Field:   "reasoning.provider",
			Message: fmt.Sprintf("unsupported provider %q: must be 'anthropic'", cfg.Provider),
		})
	}

	if cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "reasoning.base_url",
				Message: fmt.Sprintf("invalid base URL %q", cfg.BaseURL),
			})
		}
	}

	if cfg.MaxTokens < 1 {
		errs = append(errs, FieldError{Field: "reasoning.max_tokens", Message: "max tokens must be at least 1"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "reasoning.max_retries", Message: "max retries cannot be negative"})
	}
	if cfg.MaxConcurrent < 1 {
		errs = append(errs, FieldError{Field: "reasoning.max_concurrent", Message: "max concurrent must be at least 1"})
	}
	if cfg.RequestsPerMinute < 0 {
		errs = append(errs, FieldError{Field: "reasoning.requests_per_minute", Message: "requests per minute cannot be negative"})
	}

	for model, p := range cfg.Pricing {
		if p.Input < 0 || p.Output < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("reasoning.pricing.%s", model),
				Message: "prices cannot be negative",
			})
		}
	}

	return errs
}

func validateClinical(cfg *ClinicalConfig) []FieldError {
	var errs []FieldError

	validDrivers := map[string]bool{"sqlite": true, "sqlite3": true, "mysql": true}
	if !validDrivers[cfg.Driver] {
		errs = append(errs, FieldError{
			Field:   "clinical.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite', 'sqlite3', or 'mysql'", cfg.Driver),
		})
	}
	if cfg.DSN == "" {
		errs = append(errs, FieldError{Field: "clinical.dsn", Message: "dsn is required"})
	}

	return errs
}

func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.max_idle_conns",
				Message: "max idle connections cannot exceed max open connections",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	return errs
}

func validateJobs(cfg *JobsConfig, reasoning *ReasoningConfig) []FieldError {
	var errs []FieldError

	if cfg.SubjectConcurrency < 1 {
		errs = append(errs, FieldError{Field: "jobs.subject_concurrency", Message: "subject concurrency must be at least 1"})
	} else if cfg.SubjectConcurrency > reasoning.MaxConcurrent {
		errs = append(errs, FieldError{
			Field:   "jobs.subject_concurrency",
			Message: fmt.Sprintf("subject concurrency %d exceeds reasoning.max_concurrent %d", cfg.SubjectConcurrency, reasoning.MaxConcurrent),
		})
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "jobs.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}

	return errs
}

func validateNotify(cfg *NotifyConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.NATSURL == "" {
		errs = append(errs, FieldError{Field: "notify.nats_url", Message: "nats url is required when notifications are enabled"})
	}
	if cfg.Subject == "" {
		errs = append(errs, FieldError{Field: "notify.subject", Message: "subject is required when notifications are enabled"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path is required when metrics are enabled",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
