// Package audio defines the device contracts rehearsa drives during an
// interview: a [Player] that makes interviewer speech audible on the
// candidate's side and a [Microphone] that records the candidate's answer.
//
// Implementations live with the transport that reaches the candidate (the
// websocket session in internal/server) or in audio/mock for tests. The
// interfaces are intentionally narrow so the orchestrator stays independent
// of where the speaker and microphone physically are.
//
// This package lives under pkg/ because alternative front-ends (a native
// client, a telephony bridge) are expected to implement these interfaces.
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Microphone.Open] when the user refused
// access to the input device.
var ErrPermissionDenied = errors.New("audio: input device permission denied")

// ErrDeviceClosed is returned when a device is used after its transport went away.
var ErrDeviceClosed = errors.New("audio: device closed")

// Clip is one encoded utterance to play.
type Clip struct {
	// Audio is the encoded payload. Empty for a text-only prompt.
	Audio []byte

	// ContentType is the MIME type of Audio.
	ContentType string

	// Text is the spoken text, shown as a caption or as the visual fallback
	// when Audio is empty.
	Text string

	// Rate is the playback-rate multiplier (1.0 = natural speed).
	Rate float64
}

// Playback tracks one clip being played.
type Playback interface {
	// Audible is closed once sound is actually coming out of the speaker.
	Audible() <-chan struct{}

	// Done is closed once playback ended, failed or was stopped. Done implies
	// nothing about Audible: a clip may end without ever becoming audible.
	Done() <-chan struct{}

	// Stop aborts playback. Safe to call multiple times.
	Stop()
}

// Player plays clips on the candidate's output device.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play starts playback of clip and returns immediately. The returned
	// Playback reports progress; ctx only bounds the start request.
	Play(ctx context.Context, clip Clip) (Playback, error)
}

// InputStream is an open recording on an input device.
type InputStream interface {
	// Chunks delivers captured audio as it arrives. The channel is closed when
	// the stream ends for any reason.
	Chunks() <-chan []byte

	// ContentType is the MIME type of the concatenated chunks.
	ContentType() string

	// Close stops recording and releases the device. Safe to call multiple
	// times; subsequent calls return nil.
	Close() error
}

// Microphone opens recordings on the candidate's input device.
//
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Open asks for device access (if not yet granted) and starts recording.
	// Returns [ErrPermissionDenied] when access was refused.
	Open(ctx context.Context) (InputStream, error)
}
