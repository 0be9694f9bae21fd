// Package providers implements the transport to the reasoning service used by
// tool-orchestrated rule evaluations.
//
// # Overview
//
// The package normalizes a tool-calling conversation into provider-agnostic
// types (Message, ContentBlock, Tool, CompletionResponse) and hands them to a
// Provider adapter. The Anthropic Messages API adapter lives in the anthropic
// subpackage.
//
// # Architecture
//
//  1. Provider Interface - The contract the evaluation engine depends on
//  2. Base HTTP Provider - Connection pooling, bounded retries with
//     exponential backoff, timeouts, and health bookkeeping
//  3. Provider Adapters - Wire-format transforms (anthropic)
//
// # Conversation Model
//
// A conversation is a list of messages with alternating roles. Assistant
// messages may carry tool_use blocks; the following user message answers
// every tool_use with a tool_result block that references its id:
//
//	req := &providers.CompletionRequest{
//	    Model:  "claude-sonnet-4-20250514",
//	    System: systemPrompt,
//	    Tools:  tools,
//	    Messages: []providers.Message{
//	        providers.TextMessage(providers.RoleUser, "Evaluate EXCL-001 for subject 101-001"),
//	    },
//	}
//
//	resp, err := provider.SendCompletion(ctx, req)
//	if err != nil {
//	    return err
//	}
//	for _, call := range resp.ToolCalls() {
//	    // execute call.Name with call.Input
//	}
//
// # Error Handling
//
// Transport and 5xx failures are retried up to MaxRetries times. Rate limits
// honour Retry-After. Authentication and request errors are returned
// immediately as typed errors (AuthError, ProviderError) that callers inspect
// with errors.As.
package providers
