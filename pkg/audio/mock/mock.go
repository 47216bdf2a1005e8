// Package mock provides in-memory implementations of [audio.Player] and
// [audio.Microphone] for unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose fields that control results.
//
// Typical usage:
//
//	player := &mock.Player{AutoAudible: true, AutoDone: true}
//	mic := &mock.Microphone{Chunks: [][]byte{[]byte("answer")}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearsa/pkg/audio"
)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// AutoAudible marks every playback audible as soon as it starts.
	AutoAudible bool

	// AutoDone marks every playback finished as soon as it starts.
	AutoDone bool

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// Clips records every clip passed to Play, in order.
	Clips []audio.Clip

	// Handles holds the playback handle returned for each clip, in order.
	Handles []*audio.Handle

	// Stops counts playbacks stopped before they finished.
	Stops int
}

// Play records clip and returns a controllable handle.
func (p *Player) Play(_ context.Context, clip audio.Clip) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Clips = append(p.Clips, clip)
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	h := audio.NewHandle(func() {
		p.mu.Lock()
		p.Stops++
		p.mu.Unlock()
	})
	if p.AutoAudible {
		h.MarkAudible()
	}
	if p.AutoDone {
		h.MarkDone()
	}
	p.Handles = append(p.Handles, h)
	return h, nil
}

// Played returns the caption texts of all played clips. Thread-safe.
func (p *Player) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Clips))
	for i, c := range p.Clips {
		out[i] = c.Text
	}
	return out
}

// Last returns the most recent handle, or nil. Thread-safe.
func (p *Player) Last() *audio.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Handles) == 0 {
		return nil
	}
	return p.Handles[len(p.Handles)-1]
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// Prompt, if non-nil, makes Open wait until it is closed or the context
	// ends, like a browser permission prompt. A context that ends first makes
	// Open return its error.
	Prompt chan struct{}

	// Chunks are delivered on every opened stream, then the stream stays open
	// until closed.
	Chunks [][]byte

	// MIME is reported by opened streams. Defaults to "audio/webm".
	MIME string

	// Opens counts Open calls, including failed ones.
	Opens int

	// Closes counts streams closed by the caller.
	Closes int

	open int
}

// Open records the call and returns a stream pre-filled with Chunks.
func (m *Microphone) Open(ctx context.Context) (audio.InputStream, error) {
	if m.Prompt != nil {
		select {
		case <-m.Prompt:
		case <-ctx.Done():
			m.mu.Lock()
			m.Opens++
			m.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opens++
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	mime := m.MIME
	if mime == "" {
		mime = "audio/webm"
	}
	s := &Stream{
		mic:  m,
		mime: mime,
		ch:   make(chan []byte, len(m.Chunks)),
	}
	for _, c := range m.Chunks {
		s.ch <- c
	}
	m.open++
	return s, nil
}

// OpenStreams reports how many streams are currently open. Thread-safe.
func (m *Microphone) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Stream is the [audio.InputStream] returned by [Microphone.Open].
type Stream struct {
	mic       *Microphone
	mime      string
	ch        chan []byte
	closeOnce sync.Once
}

// Chunks implements [audio.InputStream].
func (s *Stream) Chunks() <-chan []byte { return s.ch }

// ContentType implements [audio.InputStream].
func (s *Stream) ContentType() string { return s.mime }

// Close implements [audio.InputStream].
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.ch)
		s.mic.mu.Lock()
		s.mic.Closes++
		s.mic.open--
		s.mic.mu.Unlock()
	})
	return nil
}

var (
	_ audio.Player      = (*Player)(nil)
	_ audio.Microphone  = (*Microphone)(nil)
	_ audio.InputStream = (*Stream)(nil)
)
