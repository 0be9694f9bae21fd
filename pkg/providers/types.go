package providers

import (
	"encoding/json"
	"strings"
	"time"
)

// Message roles. The system prompt travels in CompletionRequest.System.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stop reasons reported by the reasoning service.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
	StopSequence  = "stop_sequence"
)

// ContentBlock is one element of a message. Which fields are set depends on
// Type.
type ContentBlock struct {
	// Type is BlockText, BlockToolUse, or BlockToolResult.
	Type string `json:"type"`

	// Text is the text of a text block.
	Text string `json:"text,omitempty"`

	// ID, Name, and Input describe a tool_use block.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// ToolUseID, Content, and IsError describe a tool_result block.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content holds the turn's blocks in order.
	Content []ContentBlock `json:"content"`
}

// TextMessage returns a message with a single text block.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ToolResultMessage returns the user turn answering tool calls. All results
// of one assistant turn must travel in one message.
func ToolResultMessage(results ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: results}
}

// ToolResultBlock returns a tool_result block for the given tool_use id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	return joinText(m.Content)
}

// Tool describes a tool the reasoning service may call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a normalized tool_use block from a response.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// TokenUsage contains token consumption for one request.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionRequest is a provider-agnostic request.
type CompletionRequest struct {
	// Model is the model identifier (required).
	Model string

	// System is the system prompt.
	System string

	// Messages is the conversation history (required). It must start with a
	// user message and alternate roles.
	Messages []Message

	// MaxTokens caps the completion size.
	MaxTokens int

	// Temperature controls randomness. Zero keeps the provider default.
	Temperature float64

	// Tools lists the tools the model may call in this round.
	Tools []Tool

	// Metadata carries request labels for logging (job_id, rule_id).
	Metadata map[string]string
}

// CompletionResponse is a provider-agnostic response.
type CompletionResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// Text concatenates the response's text blocks.
func (r *CompletionResponse) Text() string {
	return joinText(r.Content)
}

// ToolCalls returns the response's tool_use blocks in order.
func (r *CompletionResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return calls
}

// AssistantMessage returns the response as a history entry.
func (r *CompletionResponse) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: r.Content}
}

func joinText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ProviderConfig contains configuration for a provider instance.
type ProviderConfig struct {
	// Name is the provider's name used in logs and errors.
	Name string

	// Type is the adapter type ("anthropic").
	Type string

	// BaseURL is the API base URL.
	BaseURL string

	// APIKey is the API key.
	APIKey string

	// Timeout is the HTTP timeout for one attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// RetryBackoff is the base delay before the first retry. Each further
	// retry doubles it.
	// Default: 1s
	RetryBackoff time.Duration

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum number of idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept.
	IdleConnTimeout time.Duration
}

// ProviderHealth contains request bookkeeping for a provider.
type ProviderHealth struct {
	IsHealthy             bool      `json:"is_healthy"`
	LastCheck             time.Time `json:"last_check"`
	ConsecutiveFailures   int       `json:"consecutive_failures"`
	LastError             error     `json:"-"`
	LastSuccessfulRequest time.Time `json:"last_successful_request"`
	TotalRequests         int64     `json:"total_requests"`
	FailedRequests        int64     `json:"failed_requests"`
}
