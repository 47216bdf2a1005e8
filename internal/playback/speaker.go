// Package playback turns interviewer text into audible speech.
//
// A [Speaker] synthesises text with a [tts.Provider] and hands the clip to an
// [audio.Player]. The returned [Utterance] reports when speech became audible
// and when it ended. Synthesis is best-effort: when it fails the text is still
// delivered as a caption and the utterance counts as audible at once, so the
// interview never waits on a voice that will not come.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/pkg/audio"
	"github.com/MrWong99/rehearsa/pkg/provider/tts"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// Rate bounds for the speaking-rate multiplier.
const (
	MinRate     = 0.7
	MaxRate     = 1.25
	DefaultRate = 1.05
)

const defaultSynthesisTimeout = 15 * time.Second

var (
	// ErrSynthesis wraps any failure to produce audio for an utterance.
	ErrSynthesis = errors.New("playback: synthesis failed")

	// ErrPlayback wraps a failure of the output device to accept a clip.
	ErrPlayback = errors.New("playback: player rejected clip")
)

// ClampRate bounds r to [MinRate, MaxRate]. Zero selects [DefaultRate].
func ClampRate(r float64) float64 {
	switch {
	case r == 0:
		return DefaultRate
	case r < MinRate:
		return MinRate
	case r > MaxRate:
		return MaxRate
	}
	return r
}

// Speaker synthesises and plays interviewer utterances. It holds no
// per-utterance state and is safe for concurrent use.
type Speaker struct {
	tts          tts.Provider
	player       audio.Player
	voice        types.VoiceProfile
	rate         float64
	timeout      time.Duration
	metrics      *observe.Metrics
	providerName string
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice selects the synthesis voice.
func WithVoice(id string) Option {
	return func(s *Speaker) { s.voice.ID = id }
}

// WithRate sets the playback-rate multiplier. Out-of-range values are clamped.
func WithRate(r float64) Option {
	return func(s *Speaker) { s.rate = ClampRate(r) }
}

// WithSynthesisTimeout bounds a single synthesis call. Expiry counts as
// a synthesis failure.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records synthesis latency and outcomes on m.
func WithMetrics(m *observe.Metrics, providerName string) Option {
	return func(s *Speaker) {
		s.metrics = m
		s.providerName = providerName
	}
}

// NewSpeaker returns a Speaker that synthesises with p and plays on player.
func NewSpeaker(p tts.Provider, player audio.Player, opts ...Option) *Speaker {
	s := &Speaker{
		tts:     p,
		player:  player,
		rate:    DefaultRate,
		timeout: defaultSynthesisTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rate returns the effective playback-rate multiplier.
func (s *Speaker) Rate() float64 { return s.rate }

// Utterance is one interviewer line being spoken.
type Utterance struct {
	// Text is the line as written.
	Text string

	// Spoken reports whether synthesised audio was played. False means the
	// text was delivered as a caption only.
	Spoken bool

	audible  <-chan struct{}
	done     <-chan struct{}
	playback audio.Playback
}

// Audible is closed once the line can be perceived by the candidate. For a
// caption-only utterance it is already closed.
func (u *Utterance) Audible() <-chan struct{} { return u.audible }

// Done is closed once playback finished or was stopped.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// Stop aborts playback. Safe to call multiple times.
func (u *Utterance) Stop() {
	if u.playback != nil {
		u.playback.Stop()
	}
}

// Speak synthesises text and starts playing it. It returns as soon as
// playback started; use [Utterance.Audible] to learn when sound is heard.
//
// On synthesis or playback failure Speak still returns a usable caption-only
// Utterance together with an error wrapping [ErrSynthesis] or [ErrPlayback].
// The error is informational: the caller may proceed as if the line was heard.
// Speak returns a nil Utterance only when ctx is already done.
func (s *Speaker) Speak(ctx context.Context, text string) (*Utterance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clip, err := s.synthesize(ctx, text)
	if err != nil {
		s.caption(ctx, text)
		return captionOnly(text), fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	pb, err := s.player.Play(ctx, audio.Clip{
		Audio:       clip.Audio,
		ContentType: clip.ContentType,
		Text:        text,
		Rate:        s.rate,
	})
	if err != nil {
		return captionOnly(text), fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	return &Utterance{
		Text:     text,
		Spoken:   true,
		audible:  pb.Audible(),
		done:     pb.Done(),
		playback: pb,
	}, nil
}

func (s *Speaker) synthesize(ctx context.Context, text string) (tts.Clip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	voice := s.voice
	voice.SpeedFactor = s.rate
	clip, err := s.tts.Synthesize(ctx, text, voice)
	if err == nil && len(clip.Audio) == 0 {
		err = errors.New("empty audio")
	}
	if s.metrics != nil {
		s.metrics.RecordProviderCall(ctx, s.providerName, observe.KindTTS, time.Since(start), err)
	}
	return clip, err
}

// caption delivers text without audio so the candidate can still read the
// question. Failures are logged only.
func (s *Speaker) caption(ctx context.Context, text string) {
	pb, err := s.player.Play(ctx, audio.Clip{Text: text, Rate: s.rate})
	if err != nil {
		slog.Debug("playback: caption delivery failed", "err", err)
		return
	}
	pb.Stop()
}

func captionOnly(text string) *Utterance {
	ch := make(chan struct{})
	close(ch)
	return &Utterance{Text: text, audible: ch, done: ch}
}
