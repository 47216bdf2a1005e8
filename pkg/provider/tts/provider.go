// Package tts defines the Provider interface for Text-to-Speech backends.
//
// rehearsa speaks one interviewer question at a time, so providers synthesise
// a complete utterance per call and return an encoded clip (MP3 by default)
// that the playback side forwards to the candidate's device unchanged.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/rehearsa/pkg/types"
)

// Clip is one synthesised utterance.
type Clip struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// ContentType is the MIME type of Audio (e.g., "audio/mpeg").
	ContentType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech using voice. Exactly one upstream
	// attempt is made; an empty Audio with a nil error is never returned.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (Clip, error)
}
