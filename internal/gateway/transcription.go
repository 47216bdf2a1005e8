package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/pkg/provider/stt"
)

const defaultTranscriptionTimeout = 20 * time.Second

// Transcription sends recorded answers to a speech-to-text provider.
type Transcription struct {
	base
	stt      stt.Provider
	language string
}

// NewTranscription returns a Transcription gateway over p.
func NewTranscription(p stt.Provider, language string, opts ...Option) *Transcription {
	return &Transcription{
		base:     newBase(observe.KindSTT, defaultTranscriptionTimeout, opts),
		stt:      p,
		language: language,
	}
}

// Transcribe returns the text spoken in audio. An empty buffer is silence and
// yields "" without contacting the provider. contentType defaults to
// [stt.DefaultContentType].
func (t *Transcription) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	if contentType == "" {
		contentType = stt.DefaultContentType
	}

	var text string
	err := t.call(ctx, func(ctx context.Context) error {
		tr, err := t.stt.Transcribe(ctx, stt.Request{
			Audio:       audio,
			ContentType: contentType,
			Language:    t.language,
		})
		text = tr.Text
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gateway: transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}
