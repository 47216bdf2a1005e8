// Package llm defines the Provider interface for Large Language Model backends.
//
// rehearsa uses an LLM for three short, non-streaming jobs: choosing the next
// interviewer move, scoring a finished transcript and drafting question sets.
// A provider wraps a remote or local model API (OpenAI, Gemini, Anthropic,
// Ollama, ...) behind one blocking Complete call.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/rehearsa/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is sent as a leading "system" message when non-empty.
	SystemPrompt string

	// JSONObject asks the backend to constrain the reply to a single JSON
	// object. Backends without such a mode ignore it; callers still parse
	// defensively.
	JSONObject bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Implementations make exactly one attempt; callers own any fallback.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() types.ModelCapabilities
}
