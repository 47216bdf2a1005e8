// Package types defines the shared types used across rehearsa packages.
//
// These types are the common vocabulary between providers, the interview
// orchestrator and the HTTP surface. Each package defines its own domain
// types; only cross-cutting data structures live here to avoid import cycles.
package types

import "time"

// Conversation roles used in transcripts and LLM histories.
const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Message is a single message in an LLM conversation history. Interview
// transcripts use the same shape: the interviewer speaks as "assistant" and
// the candidate as "user".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the result of one batch speech-to-text request.
type Transcript struct {
	// Text is the transcribed speech. Empty when the audio held only silence.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Language is the detected or requested language code.
	Language string

	// Duration is the length of the submitted audio as reported by the provider.
	Duration time.Duration
}

// VoiceProfile selects a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "aura-2-odysseus-en").
	ID string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate where the provider supports it
	// server-side. 0 means provider default.
	SpeedFactor float64
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}
