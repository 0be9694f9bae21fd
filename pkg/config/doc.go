// Package config provides configuration management for TrialMonitor.
//
// Configuration is read from a YAML file, decoded on top of the defaults in
// Default, validated, and then overridden by environment variables:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("trialmonitor.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TRIALMONITOR_SECTION_FIELD:
//
//   - TRIALMONITOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TRIALMONITOR_ENGINE_MAX_ROUNDS overrides engine.max_rounds
//   - TRIALMONITOR_LEDGER_SQLITE_PATH overrides ledger.sqlite.path
//
// ANTHROPIC_API_KEY is used for reasoning.api_key when neither the file nor
// TRIALMONITOR_REASONING_API_KEY sets it.
//
// # Global Configuration
//
// Initialize stores the loaded configuration as a process-wide singleton that
// GetConfig returns. Packages below cmd/ receive configuration values
// explicitly and never read the singleton.
package config
