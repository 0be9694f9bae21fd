package anthropic

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

const (
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	messagesPath = "/v1/messages"
)

// Provider sends reasoning rounds to the Anthropic Messages API.
type Provider struct {
	*providers.HTTPProvider
	logger *slog.Logger
}

// NewProvider builds a Provider from cfg, filling transport defaults. An
// empty API key is a ConfigError so callers can degrade to deterministic-only
// evaluation.
func NewProvider(cfg providers.ProviderConfig) (*Provider, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: "anthropic", Field: "name", Message: "provider name is required"}
	}
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "api_key", Message: "no API key configured for the reasoning service"}
	}
	withDefaults(&cfg)

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(cfg),
		logger:       slog.Default().With("component", "providers.anthropic", "provider", cfg.Name),
	}
	p.logger.Info("reasoning provider ready", "base_url", cfg.BaseURL)
	return p, nil
}

func withDefaults(cfg *providers.ProviderConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Type == "" {
		cfg.Type = "anthropic"
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
}

// SendCompletion sends one conversation round and returns the model's reply.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	body, err := transformRequest(req)
	if err != nil {
		return nil, err
	}

	cfg := p.GetConfig()
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": APIVersion,
		"Content-Type":      "application/json",
	}

	var raw AnthropicResponse
	if err := p.DoJSONRequest(ctx, http.MethodPost, cfg.BaseURL+messagesPath, body, &raw, headers); err != nil {
		return nil, err
	}

	resp, err := transformResponse(&raw)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.GetName(), Cause: err}
	}

	p.logger.Debug("reasoning round complete",
		"rule_id", req.Metadata["rule_id"],
		"subject_id", req.Metadata["subject_id"],
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp, nil
}

func checkRequest(req *providers.CompletionRequest) error {
	switch {
	case req == nil:
		return &providers.ValidationError{Field: "request", Message: "nil completion request"}
	case req.Model == "":
		return &providers.ValidationError{Field: "model", Message: "model is required"}
	case len(req.Messages) == 0:
		return &providers.ValidationError{Field: "messages", Message: "conversation is empty"}
	}
	return nil
}
