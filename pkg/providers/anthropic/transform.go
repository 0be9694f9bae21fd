package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/virupakshb/TrialMonitor/pkg/providers"
)

// Anthropic API request/response types

// AnthropicRequest represents an Anthropic messages request.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []AnthropicTool    `json:"tools,omitempty"`
	Metadata    *RequestMetadata   `json:"metadata,omitempty"`
}

// RequestMetadata is the metadata object accepted by the Messages API.
type RequestMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format.
type AnthropicMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in Anthropic format.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// AnthropicTool represents a tool definition in Anthropic format.
type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// AnthropicResponse represents an Anthropic messages response.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage in Anthropic format.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicError is the error envelope returned with non-2xx responses.
type AnthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// defaultMaxTokens is used when the request does not set MaxTokens; the API
// requires the field.
const defaultMaxTokens = 4096

var emptyInput = json.RawMessage(`{}`)

// transformRequest transforms a provider-agnostic request to Anthropic format.
func transformRequest(req *providers.CompletionRequest) (*AnthropicRequest, error) {
	out := &AnthropicRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    make([]AnthropicMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if id := req.Metadata["job_id"]; id != "" {
		out.Metadata = &RequestMetadata{UserID: id}
	}

	for i, msg := range req.Messages {
		am := AnthropicMessage{Role: msg.Role, Content: make([]ContentBlock, 0, len(msg.Content))}
		for _, b := range msg.Content {
			switch b.Type {
			case providers.BlockText:
				if b.Text == "" {
					continue
				}
				am.Content = append(am.Content, ContentBlock{Type: b.Type, Text: b.Text})
			case providers.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = emptyInput
				}
				am.Content = append(am.Content, ContentBlock{Type: b.Type, ID: b.ID, Name: b.Name, Input: input})
			case providers.BlockToolResult:
				am.Content = append(am.Content, ContentBlock{
					Type:      b.Type,
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			default:
				return nil, &providers.ValidationError{
					Field:   fmt.Sprintf("messages[%d].content", i),
					Message: fmt.Sprintf("unsupported content block type %q", b.Type),
				}
			}
		}
		if len(am.Content) == 0 {
			return nil, &providers.ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "message has no content",
			}
		}
		out.Messages = append(out.Messages, am)
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]AnthropicTool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = AnthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			}
		}
	}

	if err := validateMessageSequence(out.Messages); err != nil {
		return nil, err
	}

	return out, nil
}

// validateMessageSequence validates that messages alternate between user and assistant.
func validateMessageSequence(messages []AnthropicMessage) error {
	if len(messages) == 0 {
		return nil
	}

	if messages[0].Role != providers.RoleUser {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "first message must be from user",
		}
	}

	for i := 1; i < len(messages); i++ {
		if messages[i-1].Role == messages[i].Role {
			return &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("messages must alternate between user and assistant, found consecutive %s messages at index %d", messages[i].Role, i),
			}
		}
	}

	return nil
}

// transformResponse transforms an Anthropic response to provider-agnostic format.
func transformResponse(resp *AnthropicResponse) (*providers.CompletionResponse, error) {
	out := &providers.CompletionResponse{
		ID:         resp.ID,
		Model:      resp.Model,
		StopReason: resp.StopReason,
		Usage: providers.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Content: make([]providers.ContentBlock, 0, len(resp.Content)),
	}

	for _, block := range resp.Content {
		switch block.Type {
		case providers.BlockText:
			out.Content = append(out.Content, providers.ContentBlock{Type: block.Type, Text: block.Text})
		case providers.BlockToolUse:
			if block.ID == "" || block.Name == "" {
				return nil, fmt.Errorf("tool_use block missing id or name")
			}
			input := block.Input
			if len(input) == 0 || string(input) == "null" {
				input = emptyInput
			}
			out.Content = append(out.Content, providers.ContentBlock{
				Type:  block.Type,
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}

	return out, nil
}
