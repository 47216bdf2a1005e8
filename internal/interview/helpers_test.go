package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/rehearsa/internal/capture"
	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/feedback"
	"github.com/MrWong99/rehearsa/internal/playback"
	audiomock "github.com/MrWong99/rehearsa/pkg/audio/mock"
	ttsmock "github.com/MrWong99/rehearsa/pkg/provider/tts/mock"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeTranscriber struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
	audio [][]byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.audio = append(f.audio, audio)
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "an answer", nil
	}
	t := f.texts[0]
	f.texts = f.texts[1:]
	return t, nil
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDecider struct {
	mu        sync.Mutex
	decisions []decision.Decision
	err       error
	block     bool
	reqs      []decision.Request
}

func (f *fakeDecider) Decide(ctx context.Context, req decision.Request) (decision.Decision, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	if f.block {
		f.mu.Unlock()
		<-ctx.Done()
		return decision.Decision{}, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.err != nil {
		return decision.Decision{}, f.err
	}
	if len(f.decisions) == 0 {
		return decision.Decision{Kind: decision.Proceed}, nil
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d, nil
}

func (f *fakeDecider) Requests() []decision.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decision.Request(nil), f.reqs...)
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls []feedback.Request
	err   error
}

func (f *fakeFinalizer) Finalize(_ context.Context, req feedback.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return "fb-1", nil
}

func (f *fakeFinalizer) Calls() []feedback.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedback.Request(nil), f.calls...)
}

// ─── harness ─────────────────────────────────────────────────────────────────

type harness struct {
	session     *Session
	tts         *ttsmock.Provider
	player      *audiomock.Player
	mic         *audiomock.Microphone
	transcriber *fakeTranscriber
	decider     *fakeDecider
	finalizer   *fakeFinalizer
}

type harnessOption func(*harness, *Config)

func newHarness(t *testing.T, questions []string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		tts:         &ttsmock.Provider{},
		player:      &audiomock.Player{AutoAudible: true},
		mic:         &audiomock.Microphone{Chunks: [][]byte{[]byte("voice")}},
		transcriber: &fakeTranscriber{},
		decider:     &fakeDecider{},
		finalizer:   &fakeFinalizer{},
	}
	cfg := Config{
		ID:          "s1",
		InterviewID: "iv1",
		UserID:      "u1",
		Questions:   questions,
	}
	for _, o := range opts {
		o(h, &cfg)
	}

	s, err := NewSession(cfg, Deps{
		Speaker:     playback.NewSpeaker(h.tts, h.player),
		Recorder:    capture.NewRecorder(h.mic),
		Transcriber: h.transcriber,
		Decider:     h.decider,
		Finalizer:   h.finalizer,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.session = s
	return h
}

// run starts the session and consumes its events. onPhase is called for every
// phase event with the number of times that phase was entered so far.
func (h *harness) run(t *testing.T, onPhase func(p Phase, n int)) (Outcome, []Event) {
	t.Helper()

	type result struct {
		out Outcome
		err error
	}
	res := make(chan result, 1)
	go func() {
		out, err := h.session.Run(context.Background())
		res <- result{out, err}
	}()

	evs := collect(t, h.session, onPhase)

	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("Run: %v", r.err)
		}
		return r.out, evs
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
		return Outcome{}, nil
	}
}

func collect(t *testing.T, s *Session, onPhase func(p Phase, n int)) []Event {
	t.Helper()
	var evs []Event
	seen := map[Phase]int{}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return evs
			}
			evs = append(evs, ev)
			if ev.Type == EventPhase {
				seen[ev.Phase]++
				if onPhase != nil {
					onPhase(ev.Phase, seen[ev.Phase])
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for session events")
			return evs
		}
	}
}

// answerEvery stops every answer as soon as listening starts.
func answerEvery(s *Session) func(Phase, int) {
	return func(p Phase, _ int) {
		if p == Listening {
			s.StopAnswer()
		}
	}
}

func interviewerLines(turns []Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role == "assistant" {
			out = append(out, t.Content)
		}
	}
	return out
}

func phases(evs []Event) []Phase {
	var out []Phase
	for _, ev := range evs {
		if ev.Type == EventPhase {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func notices(evs []Event) []string {
	var out []string
	for _, ev := range evs {
		if ev.Type == EventNotice {
			out = append(out, ev.Code)
		}
	}
	return out
}

var errBoom = errors.New("boom")
