package providerfactory

import (
	"fmt"
	"log/slog"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/providers/anthropic"
)

// NewProvider creates a new provider instance based on the configuration.
//
// Supported provider types:
//   - "anthropic": Anthropic Messages API
//
// When config.Type is empty it is inferred from the provider name.
//
// Example:
//
//	provider, err := NewProvider(providers.ProviderConfig{
//	    Name:   "anthropic",
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
func NewProvider(cfg providers.ProviderConfig) (providers.Provider, error) {
	if cfg.Type == "" {
		cfg.Type = inferProviderType(cfg.Name)
	}

	slog.Debug("creating provider",
		"name", cfg.Name,
		"type", cfg.Type,
		"base_url", cfg.BaseURL,
	)

	var (
		provider providers.Provider
		err      error
	)
	switch cfg.Type {
	case "anthropic":
		provider, err = anthropic.NewProvider(cfg)
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: anthropic)", cfg.Type),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
	}

	slog.Info("provider created successfully",
		"name", cfg.Name,
		"type", cfg.Type,
	)

	return provider, nil
}

// FromConfig creates the reasoning-service provider described by the
// reasoning section of the application configuration, throttled to
// cfg.RequestsPerMinute when set.
func FromConfig(cfg config.ReasoningConfig) (providers.Provider, error) {
	p, err := NewProvider(ProviderConfig(cfg))
	if err != nil {
		return nil, err
	}
	return providers.RateLimited(p, cfg.RequestsPerMinute), nil
}

// ProviderConfig maps the reasoning configuration section to a provider
// configuration.
func ProviderConfig(cfg config.ReasoningConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:       cfg.Provider,
		Type:       cfg.Provider,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}
}

// inferProviderType infers the provider type from the provider name.
func inferProviderType(name string) string {
	switch name {
	case "anthropic", "claude":
		return "anthropic"
	default:
		return name
	}
}
