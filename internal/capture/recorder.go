// Package capture records the candidate's spoken answers.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/rehearsa/pkg/audio"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is running.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrPermissionDenied is returned by Start once the candidate refused
	// microphone access. It wraps [audio.ErrPermissionDenied].
	ErrPermissionDenied = fmt.Errorf("capture: %w", audio.ErrPermissionDenied)
)

// Buffer is one recorded answer.
type Buffer struct {
	Audio       []byte
	ContentType string
}

// Recorder captures one answer at a time from a [audio.Microphone].
//
// Microphone permission is requested at most once per Recorder: after the
// first denial a single warning is logged and every later Start fails fast
// with [ErrPermissionDenied] without asking again.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	mic         audio.Microphone
	contentType string
	log         *slog.Logger

	mu     sync.Mutex
	stream audio.InputStream
	data   chan []byte
	denied bool
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithContentType sets the content type reported when the stream does not
// name one. Default "audio/webm".
func WithContentType(ct string) Option {
	return func(r *Recorder) {
		if ct != "" {
			r.contentType = ct
		}
	}
}

// WithLogger sets the logger used for the permission warning.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// NewRecorder returns a Recorder reading from mic.
func NewRecorder(mic audio.Microphone, opts ...Option) *Recorder {
	r := &Recorder{
		mic:         mic,
		contentType: "audio/webm",
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start opens the microphone and begins collecting audio.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return ErrAlreadyRecording
	}
	if r.denied {
		return ErrPermissionDenied
	}

	stream, err := r.mic.Open(ctx)
	if errors.Is(err, audio.ErrPermissionDenied) {
		r.denied = true
		r.log.Warn("microphone permission denied; answers cannot be recorded")
		return ErrPermissionDenied
	}
	if err != nil {
		return fmt.Errorf("capture: open microphone: %w", err)
	}

	data := make(chan []byte, 1)
	go func() { data <- audio.Drain(stream.Chunks()) }()

	r.stream = stream
	r.data = data
	return nil
}

// Stop ends the recording, releases the input device and returns everything
// captured since Start.
func (r *Recorder) Stop() (Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream == nil {
		return Buffer{}, ErrNotRecording
	}
	stream := r.stream
	r.stream = nil

	closeErr := stream.Close()
	buf := Buffer{Audio: <-r.data, ContentType: stream.ContentType()}
	if buf.ContentType == "" {
		buf.ContentType = r.contentType
	}
	if closeErr != nil {
		return buf, fmt.Errorf("capture: close microphone: %w", closeErr)
	}
	return buf, nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Denied reports whether microphone access was refused.
func (r *Recorder) Denied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.denied
}
