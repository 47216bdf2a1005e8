package audio

import "sync"

// Handle is a ready-made [Playback] for implementations that learn about
// playback progress through callbacks (client acknowledgements, player
// events). Mark methods are idempotent and safe for concurrent use.
type Handle struct {
	audible     chan struct{}
	done        chan struct{}
	audibleOnce sync.Once
	doneOnce    sync.Once
	onStop      func()
}

var _ Playback = (*Handle)(nil)

// NewHandle returns a Handle. onStop, if non-nil, runs once when Stop is
// first called before playback finished.
func NewHandle(onStop func()) *Handle {
	return &Handle{
		audible: make(chan struct{}),
		done:    make(chan struct{}),
		onStop:  onStop,
	}
}

// Audible implements [Playback].
func (h *Handle) Audible() <-chan struct{} { return h.audible }

// Done implements [Playback].
func (h *Handle) Done() <-chan struct{} { return h.done }

// MarkAudible records that sound became audible.
func (h *Handle) MarkAudible() {
	h.audibleOnce.Do(func() { close(h.audible) })
}

// MarkDone records that playback ended.
func (h *Handle) MarkDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Stop implements [Playback].
func (h *Handle) Stop() {
	h.doneOnce.Do(func() {
		if h.onStop != nil {
			h.onStop()
		}
		close(h.done)
	})
}
