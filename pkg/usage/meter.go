package usage

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

// Totals is a snapshot of reasoning-service consumption.
type Totals struct {
	InputTokens        int64   `json:"total_input_tokens"`
	OutputTokens       int64   `json:"total_output_tokens"`
	APICalls           int64   `json:"total_api_calls"`
	LLMRuleEvaluations int64   `json:"llm_rule_evaluations"`
	EstimatedCostUSD   float64 `json:"estimated_cost_usd"`
}

// Tokens returns input plus output tokens.
func (t Totals) Tokens() int64 {
	return t.InputTokens + t.OutputTokens
}

// Add returns t plus o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		InputTokens:        t.InputTokens + o.InputTokens,
		OutputTokens:       t.OutputTokens + o.OutputTokens,
		APICalls:           t.APICalls + o.APICalls,
		LLMRuleEvaluations: t.LLMRuleEvaluations + o.LLMRuleEvaluations,
		EstimatedCostUSD:   t.EstimatedCostUSD + o.EstimatedCostUSD,
	}
}

// Rounded returns t with the cost rounded to six decimals.
func (t Totals) Rounded() Totals {
	t.EstimatedCostUSD = math.Round(t.EstimatedCostUSD*1e6) / 1e6
	return t
}

// Meter accumulates the consumption of one job. It is safe for concurrent
// use by the job's rule evaluations.
type Meter struct {
	mu      sync.Mutex
	pricing *Pricing
	totals  Totals
}

// NewMeter returns an empty meter priced by pricing. A nil pricing uses the
// default rates.
func NewMeter(pricing *Pricing) *Meter {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Meter{pricing: pricing}
}

// RecordCall adds one reasoning-service round trip.
func (m *Meter) RecordCall(model string, u providers.TokenUsage) {
	cost := m.pricing.For(model).Cost(u)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.InputTokens += int64(u.InputTokens)
	m.totals.OutputTokens += int64(u.OutputTokens)
	m.totals.APICalls++
	m.totals.EstimatedCostUSD += cost
}

// RecordEvaluation counts one completed tool-orchestrated rule evaluation.
func (m *Meter) RecordEvaluation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.LLMRuleEvaluations++
}

// Totals returns the meter's current totals.
func (m *Meter) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}

// Session is the process-wide total of every merged job meter.
type Session struct {
	mu      sync.RWMutex
	pricing *Pricing
	totals  Totals
	since   time.Time
	now     func() time.Time
}

// NewSession returns an empty session.
func NewSession(pricing *Pricing) *Session {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Session{pricing: pricing, since: time.Now(), now: time.Now}
}

// Pricing returns the session's pricing table; job meters share it.
func (s *Session) Pricing() *Pricing {
	return s.pricing
}

// NewMeter returns a job meter using the session's pricing.
func (s *Session) NewMeter() *Meter {
	return NewMeter(s.pricing)
}

// Merge adds a finished job's totals to the session in one step.
func (s *Session) Merge(t Totals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = s.totals.Add(t)
}

// Reset clears the session totals.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = Totals{}
	s.since = s.now()
}

// Stats is the session report served by the usage endpoint.
type Stats struct {
	Totals
	TotalTokens          int64   `json:"total_tokens"`
	InputCostPerMillion  float64 `json:"input_cost_per_million"`
	OutputCostPerMillion float64 `json:"output_cost_per_million"`
	CostDisplay          string  `json:"estimated_cost_display"`
	Since                string  `json:"since"`
}

// Stats returns the current session report.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	t := s.totals.Rounded()
	since := s.since
	s.mu.RUnlock()

	price := s.pricing.Default()
	return Stats{
		Totals:               t,
		TotalTokens:          t.Tokens(),
		InputCostPerMillion:  price.InputPerMillion,
		OutputCostPerMillion: price.OutputPerMillion,
		CostDisplay:          fmt.Sprintf("$%.4f", t.EstimatedCostUSD),
		Since:                since.UTC().Format(time.RFC3339),
	}
}
