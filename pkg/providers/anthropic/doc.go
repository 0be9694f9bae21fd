// Package anthropic implements the Anthropic Messages API adapter used as the
// reasoning service.
//
// # Basic Usage
//
//	provider, err := anthropic.NewProvider(providers.ProviderConfig{
//	    Name:   "anthropic",
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
// # Request Transformation
//
//   - The system prompt is sent in the "system" field
//   - Messages must alternate between user and assistant, starting with user
//   - MaxTokens is required (defaults to 4096 if not provided)
//   - tool_use blocks always carry an input object, {} when empty
//   - tool_result blocks carry is_error for failed tool executions
//   - Empty text blocks are dropped; the API rejects them
//
// # Response Transformation
//
// Content blocks are kept in order. Stop reasons are passed through unchanged
// (end_turn, tool_use, max_tokens, stop_sequence) and token usage is reported
// as input and output counts.
//
// # Error Handling
//
//   - 401/403 -> AuthError
//   - 429 -> RateLimitError, retried honouring Retry-After
//   - other 4xx -> ProviderError
//   - 5xx and transport errors -> ProviderError, retried with backoff
//   - unparseable body -> ParseError
package anthropic
