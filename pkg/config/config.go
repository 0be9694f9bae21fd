package config

import "time"

// Config is the root configuration structure for TrialMonitor.
// It contains all configuration sections for the API server, the rule
// evaluation engine, the reasoning service, data stores, and telemetry.
type Config struct {
	// Server contains HTTP API server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Engine contains the rule evaluation engine bounds: rounds, tool calls,
	// timeouts, and rule-level concurrency.
	Engine EngineConfig `yaml:"engine"`

	// Reasoning contains configuration for the external reasoning (LLM)
	// service used by tool-orchestrated rules.
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// Clinical contains connection settings for the read-only clinical
	// source database.
	Clinical ClinicalConfig `yaml:"clinical"`

	// Ledger contains configuration for the append-only run ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Rules contains the location of rule and template definitions.
	Rules RulesConfig `yaml:"rules"`

	// Jobs contains batch job scheduling and parallelism settings.
	Jobs JobsConfig `yaml:"jobs"`

	// Notify contains configuration for run completion notifications.
	Notify NotifyConfig `yaml:"notify"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the API to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8090").
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig contains bounds for rule evaluation.
type EngineConfig struct {
	// MaxRounds is the maximum number of reasoning-service round trips for a
	// single LLM rule evaluation.
	// Default: 5
	MaxRounds int `yaml:"max_rounds"`

	// MaxToolCalls is the maximum number of tool calls executed during a
	// single LLM rule evaluation, across all rounds.
	// Default: 12
	MaxToolCalls int `yaml:"max_tool_calls"`

	// RoundTimeout bounds one reasoning-service round. The wall-clock timeout
	// of a rule evaluation is MaxRounds x RoundTimeout.
	// Default: 60s
	RoundTimeout time.Duration `yaml:"round_timeout"`

	// RuleConcurrency is the number of rules evaluated concurrently for one
	// subject. Results always keep submission order.
	// Default: 1
	RuleConcurrency int `yaml:"rule_concurrency"`

	// Protocol is the study label included in reasoning prompts.
	// Default: "NVX-1218.22 NovaPlex-450 in Advanced NSCLC"
	Protocol string `yaml:"protocol"`
}

// ReasoningConfig contains configuration for the reasoning service.
type ReasoningConfig struct {
	// Provider selects the reasoning service implementation.
	// Options: "anthropic"
	// Default: "anthropic"
	Provider string `yaml:"provider"`

	// BaseURL is the API base URL.
	// Default: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url"`

	// APIKey is the API key. Usually supplied through ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier sent with every request.
	// Default: "claude-sonnet-4-20250514"
	Model string `yaml:"model"`

	// MaxTokens caps the completion size of a single round.
	// Default: 4000
	MaxTokens int `yaml:"max_tokens"`

	// Timeout is the HTTP timeout for a single request.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries for transport and 5xx failures.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrent caps in-flight reasoning evaluations across all jobs.
	// Default: 4
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequestsPerMinute throttles requests to the reasoning service. Bursts
	// up to one minute's allowance are sent immediately.
	// Default: 0 (unlimited)
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Pricing maps model names (or prefixes) to per-million token prices.
	Pricing map[string]ModelPricingConfig `yaml:"pricing"`

	// DefaultPricing applies to models without a Pricing entry.
	// Default: $3 input / $15 output per million tokens
	DefaultPricing ModelPricingConfig `yaml:"default_pricing"`
}

// ModelPricingConfig contains per-million token prices in USD.
type ModelPricingConfig struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// ClinicalConfig contains connection settings for the clinical source data.
type ClinicalConfig struct {
	// Driver is the database/sql driver name.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo), "mysql"
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// DSN is the data source name. For SQLite this is a file path.
	// Default: "data/clinical_trial.db"
	DSN string `yaml:"dsn"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`
}

// LedgerConfig contains configuration for run ledger storage.
type LedgerConfig struct {
	// Backend selects the storage backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/ledger.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RulesConfig contains rule and template source locations.
type RulesConfig struct {
	// Path is a directory of rule YAML files or a single rule file.
	// Default: "configs/rules"
	Path string `yaml:"path"`

	// TemplatesPath is the template definitions file.
	// Default: "configs/templates.yaml"
	TemplatesPath string `yaml:"templates_path"`

	// Watch reloads the registry when rule files change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// JobsConfig contains batch job settings.
type JobsConfig struct {
	// SubjectConcurrency is the number of subjects evaluated in parallel
	// within a batch job. It never exceeds reasoning.max_concurrent.
	// Default: 2
	SubjectConcurrency int `yaml:"subject_concurrency"`

	// Schedule is an optional cron expression for study-wide sweeps.
	// Example: "0 2 * * *"
	Schedule string `yaml:"schedule"`
}

// NotifyConfig contains run notification settings.
type NotifyConfig struct {
	// Enabled publishes a summary message after each run is recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// NATSURL is the NATS server URL.
	// Default: "nats://127.0.0.1:4222"
	NATSURL string `yaml:"nats_url"`

	// Subject is the NATS subject run summaries are published to.
	// Default: "trialmonitor.runs.completed"
	Subject string `yaml:"subject"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSubjects masks subject identifiers in log attributes.
	// Default: false
	RedactSubjects bool `yaml:"redact_subjects"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "trialmonitor"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// ServiceName is the service name in traces.
	// Default: "trialmonitor"
	ServiceName string `yaml:"service_name"`
}
