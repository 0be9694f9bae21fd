package providers

import "context"

// Provider is the interface the evaluation engine uses to talk to the
// reasoning service. Implementations must respect context cancellation.
//
// Example usage:
//
//	provider, err := anthropic.NewProvider(config)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	resp, err := provider.SendCompletion(ctx, req)
//	if err != nil {
//	    return err
//	}
//	if resp.StopReason == providers.StopToolUse {
//	    // execute resp.ToolCalls()
//	}
type Provider interface {
	// SendCompletion sends one round of the conversation and returns the
	// model's reply. Transient failures are retried with exponential backoff
	// before an error is returned.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GetName returns the provider's configured name.
	GetName() string

	// GetType returns the provider's type (e.g., "anthropic").
	GetType() string

	// IsHealthy reports whether recent requests succeeded.
	IsHealthy() bool

	// GetHealth returns request bookkeeping including consecutive failures.
	GetHealth() ProviderHealth

	// Close releases idle connections. After calling Close, the provider
	// should not be used.
	Close() error
}
