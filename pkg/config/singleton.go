package config

import "sync"

var (
	current   *Config
	currentMu sync.RWMutex
)

// Initialize loads the configuration at path, applies TRIALMONITOR_*
// environment overrides, and makes it the process-wide configuration. On
// error the previous configuration stays in place.
func Initialize(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	SetConfig(cfg)
	return nil
}

// GetConfig returns the process-wide configuration, or nil before a
// successful Initialize.
func GetConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// SetConfig replaces the process-wide configuration.
func SetConfig(cfg *Config) {
	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
}
