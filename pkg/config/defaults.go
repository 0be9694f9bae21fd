package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Engine defaults
	DefaultMaxRounds       = 5
	DefaultMaxToolCalls    = 12
	DefaultRoundTimeout    = 60 * time.Second
	DefaultRuleConcurrency = 1
	DefaultProtocol        = "NVX-1218.22 NovaPlex-450 in Advanced NSCLC"

	// Reasoning defaults
	DefaultReasoningProvider      = "anthropic"
	DefaultReasoningBaseURL       = "https://api.anthropic.com"
	DefaultReasoningModel         = "claude-sonnet-4-20250514"
	DefaultReasoningMaxTokens     = 4000
	DefaultReasoningTimeout       = 60 * time.Second
	DefaultReasoningMaxRetries    = 3
	DefaultReasoningMaxConcurrent = 4
	DefaultInputPricePerMillion   = 3.0
	DefaultOutputPricePerMillion  = 15.0

	// Clinical defaults
	DefaultClinicalDriver       = "sqlite"
	DefaultClinicalDSN          = "data/clinical_trial.db"
	DefaultClinicalMaxOpenConns = 10

	// Ledger defaults
	DefaultLedgerBackend      = "sqlite"
	DefaultLedgerSQLitePath   = "data/ledger.db"
	DefaultLedgerMaxOpenConns = 10
	DefaultLedgerMaxIdleConns = 5
	DefaultLedgerWALMode      = true
	DefaultLedgerBusyTimeout  = 5 * time.Second

	// Rules defaults
	DefaultRulesPath     = "configs/rules"
	DefaultTemplatesPath = "configs/templates.yaml"

	// Jobs defaults
	DefaultSubjectConcurrency = 2

	// Notify defaults
	DefaultNATSURL       = "nats://127.0.0.1:4222"
	DefaultNotifySubject = "trialmonitor.runs.completed"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "trialmonitor"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "trialmonitor"
)

// Default returns a configuration with every field set to its default.
// Boolean defaults that are true can only be expressed here, so LoadConfig
// decodes YAML on top of this value.
func Default() *Config {
	cfg := &Config{}
	cfg.Ledger.SQLite.WALMode = DefaultLedgerWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyEngineDefaults(cfg)
	applyReasoningDefaults(cfg)

	// Clinical defaults
	if cfg.Clinical.Driver == "" {
		cfg.Clinical.Driver = DefaultClinicalDriver
	}
	if cfg.Clinical.DSN == "" {
		cfg.Clinical.DSN = DefaultClinicalDSN
	}
	if cfg.Clinical.MaxOpenConns == 0 {
		cfg.Clinical.MaxOpenConns = DefaultClinicalMaxOpenConns
	}

	// Ledger defaults
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = DefaultLedgerSQLitePath
	}
	if cfg.Ledger.SQLite.MaxOpenConns == 0 {
		cfg.Ledger.SQLite.MaxOpenConns = DefaultLedgerMaxOpenConns
	}
	if cfg.Ledger.SQLite.MaxIdleConns == 0 {
		cfg.Ledger.SQLite.MaxIdleConns = DefaultLedgerMaxIdleConns
	}
	if cfg.Ledger.SQLite.BusyTimeout == 0 {
		cfg.Ledger.SQLite.BusyTimeout = DefaultLedgerBusyTimeout
	}

	// Rules defaults
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = DefaultRulesPath
	}
	if cfg.Rules.TemplatesPath == "" {
		cfg.Rules.TemplatesPath = DefaultTemplatesPath
	}

	// Jobs defaults
	if cfg.Jobs.SubjectConcurrency == 0 {
		cfg.Jobs.SubjectConcurrency = DefaultSubjectConcurrency
	}

	// Notify defaults
	if cfg.Notify.NATSURL == "" {
		cfg.Notify.NATSURL = DefaultNATSURL
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}

func applyEngineDefaults(cfg *Config) {
	if cfg.Engine.MaxRounds == 0 {
		cfg.Engine.MaxRounds = DefaultMaxRounds
	}
	if cfg.Engine.MaxToolCalls == 0 {
		cfg.Engine.MaxToolCalls = DefaultMaxToolCalls
	}
	if cfg.Engine.RoundTimeout == 0 {
		cfg.Engine.RoundTimeout = DefaultRoundTimeout
	}
	if cfg.Engine.RuleConcurrency == 0 {
		cfg.Engine.RuleConcurrency = DefaultRuleConcurrency
	}
	if cfg.Engine.Protocol == "" {
		cfg.Engine.Protocol = DefaultProtocol
	}
}

func applyReasoningDefaults(cfg *Config) {
	if cfg.Reasoning.Provider == "" {
		cfg.Reasoning.Provider = DefaultReasoningProvider
	}
	if cfg.Reasoning.BaseURL == "" {
		cfg.Reasoning.BaseURL = DefaultReasoningBaseURL
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = DefaultReasoningModel
	}
	if cfg.Reasoning.MaxTokens == 0 {
		cfg.Reasoning.MaxTokens = DefaultReasoningMaxTokens
	}
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = DefaultReasoningTimeout
	}
	if cfg.Reasoning.MaxRetries == 0 {
		cfg.Reasoning.MaxRetries = DefaultReasoningMaxRetries
	}
	if cfg.Reasoning.MaxConcurrent == 0 {
		cfg.Reasoning.MaxConcurrent = DefaultReasoningMaxConcurrent
	}
	if cfg.Reasoning.DefaultPricing.Input == 0 && cfg.Reasoning.DefaultPricing.Output == 0 {
		cfg.Reasoning.DefaultPricing = ModelPricingConfig{
			Input:  DefaultInputPricePerMillion,
			Output: DefaultOutputPricePerMillion,
		}
	}
}
