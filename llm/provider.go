// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Translation of provider-native stream events into Chunks

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for one-shot and streaming analysis calls.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Complete sends one request and returns the whole answer.
	Complete(ctx context.Context, req Request) (LLMResponse, error)

	// Stream opens a streaming call. The returned ChunkStream yields the
	// response in the Responses API chunk vocabulary regardless of the
	// provider's native event format.
	Stream(ctx context.Context, req Request) (ChunkStream, error)
}
