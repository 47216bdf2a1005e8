// Package stt defines the Provider interface for Speech-to-Text backends.
//
// rehearsa transcribes one recorded answer at a time: the capture unit hands
// over a complete audio buffer and the provider returns its text. Providers
// wrap a remote service (Deepgram pre-recorded API, a whisper.cpp server) and
// never perform recognition in-process.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/rehearsa/pkg/types"
)

// DefaultContentType is assumed when a caller does not tag its audio.
// Browsers' MediaRecorder produces Opus in a WebM container by default.
const DefaultContentType = "audio/webm"

// Request is one batch transcription request.
type Request struct {
	// Audio is the encoded audio payload (WebM, WAV, MP3, ...).
	Audio []byte

	// ContentType is the MIME type of Audio. Empty means DefaultContentType.
	ContentType string

	// Language is the BCP-47 language tag. Empty uses the provider default.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits req and waits for the transcript. A recording that
	// contains only silence yields an empty Text and a nil error. Exactly one
	// upstream attempt is made.
	Transcribe(ctx context.Context, req Request) (types.Transcript, error)
}
