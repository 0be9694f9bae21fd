package usage

import (
	"math"
	"sync"
	"testing"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

func TestPricing_For(t *testing.T) {
	p := NewPricing(config.ReasoningConfig{
		Pricing: map[string]config.ModelPricingConfig{
			"claude":          {Input: 1, Output: 2},
			"claude-sonnet-4": {Input: 3, Output: 15},
			"claude-opus-4-1": {Input: 15, Output: 75},
		},
	})

	tests := []struct {
		model string
		want  Price
	}{
		{"claude-opus-4-1", Price{15, 75}},
		{"claude-sonnet-4-20250514", Price{3, 15}},
		{"claude-haiku", Price{1, 2}},
		{"other-model", Price{config.DefaultInputPricePerMillion, config.DefaultOutputPricePerMillion}},
	}
	for _, tt := range tests {
		if got := p.For(tt.model); got != tt.want {
			t.Errorf("For(%q) = %+v, want %+v", tt.model, got, tt.want)
		}
	}
}

func TestMeter_RecordCall(t *testing.T) {
	m := NewMeter(nil)
	m.RecordCall("any", providers.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000})
	m.RecordCall("any", providers.TokenUsage{InputTokens: 500_000})
	m.RecordEvaluation()

	got := m.Totals()
	if got.APICalls != 2 || got.InputTokens != 1_500_000 || got.OutputTokens != 100_000 || got.LLMRuleEvaluations != 1 {
		t.Errorf("Totals() = %+v", got)
	}
	// 1.5M * $3 + 0.1M * $15
	if math.Abs(got.EstimatedCostUSD-6.0) > 1e-9 {
		t.Errorf("EstimatedCostUSD = %f, want 6.0", got.EstimatedCostUSD)
	}
}

func TestSession_MergeIsAtomicPerJob(t *testing.T) {
	s := NewSession(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := s.NewMeter()
			m.RecordCall("m", providers.TokenUsage{InputTokens: 10, OutputTokens: 5})
			m.RecordCall("m", providers.TokenUsage{InputTokens: 10, OutputTokens: 5})
			m.RecordEvaluation()
			s.Merge(m.Totals())
		}()
	}
	wg.Wait()

	st := s.Stats()
	if st.APICalls != 40 || st.InputTokens != 400 || st.OutputTokens != 200 || st.LLMRuleEvaluations != 20 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.TotalTokens != 600 {
		t.Errorf("TotalTokens = %d, want 600", st.TotalTokens)
	}
	if st.InputCostPerMillion != 3 || st.OutputCostPerMillion != 15 {
		t.Errorf("default prices = %v / %v", st.InputCostPerMillion, st.OutputCostPerMillion)
	}

	s.Reset()
	if st := s.Stats(); st.APICalls != 0 || st.EstimatedCostUSD != 0 || st.CostDisplay != "$0.0000" {
		t.Errorf("Stats() after Reset = %+v", st)
	}
}
