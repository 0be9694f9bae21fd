package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

// Step is one scripted reasoning-service reply. Exactly one of Response and
// Err is used.
type Step struct {
	Response *providers.CompletionResponse
	Err      error
}

// ScriptedProvider is an in-process providers.Provider that replays a fixed
// sequence of replies and records every request it receives. Once the script
// is exhausted it repeats the last step.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []*providers.CompletionRequest
	closed   bool
}

// NewScriptedProvider returns a provider replaying steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// SendCompletion returns the next scripted step.
func (s *ScriptedProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *req
	cp.Messages = append([]providers.Message(nil), req.Messages...)
	s.requests = append(s.requests, &cp)

	if len(s.steps) == 0 {
		return nil, fmt.Errorf("scripted provider has no steps")
	}
	i := s.next
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	} else {
		s.next++
	}
	step := s.steps[i]
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// Requests returns the requests received so far.
func (s *ScriptedProvider) Requests() []*providers.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*providers.CompletionRequest(nil), s.requests...)
}

// Calls returns the number of requests received.
func (s *ScriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// GetName returns "scripted".
func (s *ScriptedProvider) GetName() string { return "scripted" }

// GetType returns "scripted".
func (s *ScriptedProvider) GetType() string { return "scripted" }

// IsHealthy always reports true.
func (s *ScriptedProvider) IsHealthy() bool { return true }

// GetHealth returns a healthy status with the request count.
func (s *ScriptedProvider) GetHealth() providers.ProviderHealth {
	return providers.ProviderHealth{IsHealthy: true, TotalRequests: int64(s.Calls())}
}

// Close marks the provider closed.
func (s *ScriptedProvider) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Usage is the token usage attached to scripted replies.
var Usage = providers.TokenUsage{InputTokens: 1000, OutputTokens: 200}

// Text returns a step replying with an end_turn text block.
func Text(text string) Step {
	return Step{Response: &providers.CompletionResponse{
		ID:         "msg_scripted",
		Model:      "scripted-model",
		StopReason: providers.StopEndTurn,
		Content:    []providers.ContentBlock{{Type: providers.BlockText, Text: text}},
		Usage:      Usage,
	}}
}

// JSON returns a step replying with v encoded as the final answer.
func JSON(v any) Step {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Text(string(b))
}

// Call describes one scripted tool call.
type Call struct {
	Name  string
	Input map[string]any
}

// ToolCalls returns a step requesting the given tool calls. Ids are derived
// from the call position so they are stable across runs.
func ToolCalls(calls ...Call) Step {
	content := make([]providers.ContentBlock, 0, len(calls))
	for i, c := range calls {
		input := c.Input
		if input == nil {
			input = map[string]any{}
		}
		raw, err := json.Marshal(input)
		if err != nil {
			panic(err)
		}
		content = append(content, providers.ContentBlock{
			Type:  providers.BlockToolUse,
			ID:    fmt.Sprintf("toolu_%02d_%s", i, c.Name),
			Name:  c.Name,
			Input: raw,
		})
	}
	return Step{Response: &providers.CompletionResponse{
		ID:         "msg_scripted_tools",
		Model:      "scripted-model",
		StopReason: providers.StopToolUse,
		Content:    content,
		Usage:      Usage,
	}}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}
