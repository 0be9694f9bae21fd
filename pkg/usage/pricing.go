package usage

import (
	"strings"
	"sync"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

// Price is a per-million token price in USD.
type Price struct {
	InputPerMillion  float64 `json:"input_cost_per_million"`
	OutputPerMillion float64 `json:"output_cost_per_million"`
}

// Cost returns the price of u.
func (p Price) Cost(u providers.TokenUsage) float64 {
	return float64(u.InputTokens)/1_000_000*p.InputPerMillion +
		float64(u.OutputTokens)/1_000_000*p.OutputPerMillion
}

// Pricing resolves model names to prices. It is safe for concurrent use and
// supports replacing the table at runtime.
type Pricing struct {
	mu       sync.RWMutex
	models   map[string]Price
	fallback Price
}

// NewPricing builds a pricing table from the reasoning configuration.
func NewPricing(cfg config.ReasoningConfig) *Pricing {
	p := &Pricing{}
	p.Update(cfg)
	return p
}

// DefaultPricing returns a table that prices every model at the default
// rates.
func DefaultPricing() *Pricing {
	return &Pricing{
		models: map[string]Price{},
		fallback: Price{
			InputPerMillion:  config.DefaultInputPricePerMillion,
			OutputPerMillion: config.DefaultOutputPricePerMillion,
		},
	}
}

// Update replaces the pricing table.
func (p *Pricing) Update(cfg config.ReasoningConfig) {
	models := make(map[string]Price, len(cfg.Pricing))
	for name, mp := range cfg.Pricing {
		models[name] = Price{InputPerMillion: mp.Input, OutputPerMillion: mp.Output}
	}
	fallback := Price{InputPerMillion: cfg.DefaultPricing.Input, OutputPerMillion: cfg.DefaultPricing.Output}
	if fallback.InputPerMillion == 0 && fallback.OutputPerMillion == 0 {
		fallback = Price{
			InputPerMillion:  config.DefaultInputPricePerMillion,
			OutputPerMillion: config.DefaultOutputPricePerMillion,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = models
	p.fallback = fallback
}

// For returns the price for model. An exact entry wins, then the longest
// configured prefix (e.g., "claude-sonnet-4" matches
// "claude-sonnet-4-20250514"), then the default.
func (p *Pricing) For(model string) Price {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if price, ok := p.models[model]; ok {
		return price
	}

	best := ""
	for prefix := range p.models {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return p.models[best]
	}
	return p.fallback
}

// Default returns the price applied to unlisted models.
func (p *Pricing) Default() Price {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback
}
