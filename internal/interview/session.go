// Package interview runs spoken mock interviews.
//
// A [Session] is a per-interview state machine that alternates spoken
// interviewer lines with recorded candidate answers. After each answer it
// asks a decision collaborator whether to follow up, proceed to the next
// scripted question or end, and finally hands the transcript to a
// finalization collaborator for scoring. The number of interviewer turns
// never exceeds the number of scripted questions.
//
// Each Session is driven by exactly one goroutine ([Session.Run]). Commands
// from other goroutines ([Session.StopAnswer], [Session.End]) are delivered
// over channels and applied at suspension points, so no two transitions of
// one session ever run concurrently.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/rehearsa/internal/capture"
	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/feedback"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/playback"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// Turn is one transcript entry. Role is [types.RoleAssistant] for the
// interviewer and [types.RoleUser] for the candidate.
type Turn = types.Message

// Speaker plays interviewer lines. See [playback.Speaker].
type Speaker interface {
	Speak(ctx context.Context, text string) (*playback.Utterance, error)
}

// Recorder captures candidate answers. See [capture.Recorder].
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (capture.Buffer, error)
	Recording() bool
}

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Decider chooses the next step after an answer.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (decision.Decision, error)
}

// Finalizer scores a finished transcript and returns the feedback id.
type Finalizer interface {
	Finalize(ctx context.Context, req feedback.Request) (string, error)
}

// Deps are the collaborators of a [Session]. Speaker and Recorder may be
// supplied later through [Session.Attach].
type Deps struct {
	Speaker     Speaker
	Recorder    Recorder
	Transcriber Transcriber
	Decider     Decider
	Finalizer   Finalizer

	// Metrics is optional.
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Config describes one interview.
type Config struct {
	ID          string
	InterviewID string
	UserID      string

	// Questions is the scripted question list. Its length is the turn budget.
	Questions []string

	// AudibleTimeout bounds the wait for a line to become audible. When it
	// expires the line counts as shown and listening starts. Default 10s.
	AudibleTimeout time.Duration

	// FinalizeTimeout bounds the finalization call. Default 60s.
	FinalizeTimeout time.Duration
}

const (
	defaultAudibleTimeout  = 10 * time.Second
	defaultFinalizeTimeout = 60 * time.Second
	eventBuffer            = 128
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID               string    `json:"id"`
	InterviewID      string    `json:"interviewId"`
	UserID           string    `json:"userId"`
	Phase            Phase     `json:"phase"`
	Cursor           int       `json:"cursor"`
	Total            int       `json:"total"`
	InterviewerTurns int       `json:"interviewerTurns"`
	Transcript       []Turn    `json:"transcript"`
	Outcome          *Outcome  `json:"outcome,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// line is an interviewer line waiting to be spoken.
type line struct {
	text     string
	cursor   int
	followup bool
}

// Session is one live interview. Create it with [NewSession].
type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	stopCh  chan struct{}
	endCh   chan struct{}
	endOnce sync.Once
	events  chan Event
	done    chan struct{}
	started atomic.Bool

	// Owned by the Run goroutine.
	phase            Phase
	cursor           int
	spoken           map[int]struct{}
	transcript       []Turn
	interviewerTurns int
	pending          line
	answer           capture.Buffer
	forced           bool
	utterance        *playback.Utterance
	captureErr       error

	mu      sync.Mutex
	status  Status
	outcome *Outcome
}

// NewSession validates cfg and returns an idle session.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if deps.Transcriber == nil || deps.Decider == nil || deps.Finalizer == nil {
		return nil, errors.New("interview: transcriber, decider and finalizer are required")
	}
	if cfg.AudibleTimeout <= 0 {
		cfg.AudibleTimeout = defaultAudibleTimeout
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	cfg.Questions = slices.Clone(cfg.Questions)
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Logger.With("session_id", cfg.ID, "interview_id", cfg.InterviewID),
		stopCh: make(chan struct{}, 1),
		endCh:  make(chan struct{}),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		phase:  Idle,
		spoken: make(map[int]struct{}),
	}
	s.status = Status{
		ID:          cfg.ID,
		InterviewID: cfg.InterviewID,
		UserID:      cfg.UserID,
		Phase:       Idle,
		Total:       len(cfg.Questions),
		CreatedAt:   time.Now().UTC(),
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// UserID returns the candidate's user id.
func (s *Session) UserID() string { return s.cfg.UserID }

// Attach supplies the audio collaborators. It must be called before Run.
func (s *Session) Attach(sp Speaker, rec Recorder) error {
	if s.started.Load() {
		return ErrAlreadyRunning
	}
	if s.deps.Speaker != nil || s.deps.Recorder != nil {
		return ErrAlreadyAttached
	}
	s.deps.Speaker = sp
	s.deps.Recorder = rec
	return nil
}

// Events returns the event stream. It is closed after the outcome event.
// Events are dropped when the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// StopAnswer ends the current answer. It is ignored outside Listening.
func (s *Session) StopAnswer() {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
}

// End terminates the interview early. The transcript collected so far is
// still finalized exactly once. Repeated calls are no-ops.
func (s *Session) End() {
	s.endOnce.Do(func() { close(s.endCh) })
}

// Outcome returns the result once the session terminated.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Transcript = slices.Clone(st.Transcript)
	if s.outcome != nil {
		o := *s.outcome
		st.Outcome = &o
	}
	return st
}

// Run drives the session until it terminates and returns the outcome.
// Cancelling ctx acts like [Session.End]: provider calls already in flight
// are bounded by their own timeouts and the transcript is still finalized.
//
// Run returns [ErrNotAttached] when no Speaker or Recorder was supplied and
// End was not requested, and [ErrAlreadyRunning] on a second call.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	if (s.deps.Speaker == nil || s.deps.Recorder == nil) && !s.ending() {
		return Outcome{}, ErrNotAttached
	}
	if !s.started.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyRunning
	}
	defer close(s.done)

	stop := context.AfterFunc(ctx, s.End)
	defer stop()
	ctx = context.WithoutCancel(ctx)

	s.log.Info("interview started", "questions", len(s.cfg.Questions))
	for s.phase != Terminated {
		var next Phase
		switch s.phase {
		case Idle:
			next = s.idle()
		case Speaking:
			next = s.speaking(ctx)
		case Listening:
			next = s.listening(ctx)
		case Transcribing:
			next = s.transcribing(ctx)
		case Deciding:
			next = s.deciding(ctx)
		case Finalizing:
			s.finalizing(ctx)
			next = Terminated
		}
		s.transition(next)
	}

	out, _ := s.Outcome()
	s.emit(Event{Type: EventOutcome, Outcome: &out})
	close(s.events)
	s.log.Info("interview terminated",
		"feedback_id", out.FeedbackID,
		"turns", len(s.transcript),
		"err", out.Err,
	)
	return out, nil
}

func (s *Session) idle() Phase {
	if s.ending() {
		return Finalizing
	}
	s.pending = line{text: s.cfg.Questions[0], cursor: 0}
	return Speaking
}

// speaking appends the pending interviewer line, plays it and waits until it
// is audible.
func (s *Session) speaking(ctx context.Context) Phase {
	if s.ending() {
		return Finalizing
	}
	s.stopUtterance()

	ln := s.pending
	switch err := s.say(ln); {
	case errors.Is(err, errAlreadySpoken):
		// The line already had its turn; the candidate is answering it.
		s.log.Debug("interviewer line already spoken", "cursor", ln.cursor)
		s.drainStop()
		return Listening
	case err != nil:
		s.log.Warn("interviewer line suppressed", "cursor", ln.cursor, "followup", ln.followup, "err", err)
		return Finalizing
	}
	s.emit(Event{Type: EventSpeak, Text: ln.text, Followup: ln.followup})

	utt, ended, err := await(ctx, s, true, func(ctx context.Context) (*playback.Utterance, error) {
		return s.deps.Speaker.Speak(ctx, ln.text)
	})
	s.utterance = utt
	if ended {
		s.stopUtterance()
		return Finalizing
	}
	if err != nil {
		s.notice(fmt.Errorf("%w: %w", ErrSynthesis, err))
	}
	if utt == nil {
		s.drainStop()
		return Listening
	}

	timer := time.NewTimer(s.cfg.AudibleTimeout)
	defer timer.Stop()
	select {
	case <-utt.Audible():
	case <-timer.C:
		s.notice(fmt.Errorf("%w: playback did not become audible within %s", ErrSynthesis, s.cfg.AudibleTimeout))
	case <-s.endCh:
		s.stopUtterance()
		return Finalizing
	}
	s.drainStop()
	return Listening
}

var (
	errAlreadySpoken = errors.New("scripted question already spoken")
	errBudgetSpent   = errors.New("interviewer turn budget spent")
)

// say records ln as the next interviewer turn. It has no side effects when it
// returns errAlreadySpoken or errBudgetSpent.
func (s *Session) say(ln line) error {
	if !ln.followup {
		if _, dup := s.spoken[ln.cursor]; dup {
			return errAlreadySpoken
		}
	}
	if s.interviewerTurns >= len(s.cfg.Questions) {
		return errBudgetSpent
	}
	if !ln.followup {
		s.spoken[ln.cursor] = struct{}{}
	}
	s.interviewerTurns++
	s.appendTurn(Turn{Role: types.RoleAssistant, Content: ln.text})
	return nil
}

// listening opens the microphone and records until the answer is stopped.
// End interrupts both the wait for the microphone and the recording.
func (s *Session) listening(ctx context.Context) Phase {
	_, ended, err := await(ctx, s, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.deps.Recorder.Start(ctx)
	})
	if err != nil {
		if ended {
			s.log.Debug("interview ended while opening the microphone", "err", err)
			return Finalizing
		}
		s.captureErr = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		s.notice(s.captureErr)
		return Finalizing
	}

	if ended {
		s.forced = true
	} else {
		select {
		case <-s.stopCh:
		case <-s.endCh:
			s.forced = true
		}
	}

	buf, err := s.deps.Recorder.Stop()
	if err != nil {
		s.log.Debug("stop recording", "err", err)
	}
	s.answer = buf
	return Transcribing
}

func (s *Session) transcribing(ctx context.Context) Phase {
	buf := s.answer
	s.answer = capture.Buffer{}

	text, ended, err := await(ctx, s, false, func(ctx context.Context) (string, error) {
		return s.deps.Transcriber.Transcribe(ctx, buf.Audio, buf.ContentType)
	})
	if err != nil {
		s.notice(fmt.Errorf("%w: %w", ErrTranscription, err))
		text = ""
	}
	s.appendTurn(Turn{Role: types.RoleUser, Content: text})

	if ended || s.forced || s.ending() {
		return Finalizing
	}
	return Deciding
}

func (s *Session) deciding(ctx context.Context) Phase {
	remaining := s.remaining()
	if remaining <= 0 {
		s.recordDecision("budget")
		return Finalizing
	}

	req := decision.Request{
		Messages:     slices.Clone(s.transcript),
		BaseQuestion: s.nextScripted(),
		Remaining:    remaining,
	}
	d, ended, err := await(ctx, s, true, func(ctx context.Context) (decision.Decision, error) {
		return s.deps.Decider.Decide(ctx, req)
	})
	if ended {
		return Finalizing
	}
	if err != nil {
		s.log.Warn("decision failed, using scripted order", "err", err)
		s.notice(fmt.Errorf("%w: %w", ErrDecision, err))
		s.recordDecision("fallback")
		d = decision.Decision{Kind: decision.Proceed}
	} else {
		s.recordDecision(decisionLabel(d.Kind))
	}
	if d.Kind == decision.Followup && strings.TrimSpace(d.Question) == "" {
		d = decision.Decision{Kind: decision.Proceed}
	}

	switch d.Kind {
	case decision.Followup:
		// The budget may have moved since the request was built.
		if s.remaining()-1 < 0 {
			return Finalizing
		}
		s.pending = line{text: d.Question, cursor: s.cursor, followup: true}
		return Speaking
	case decision.Proceed:
		if s.cursor+1 >= len(s.cfg.Questions) {
			return Finalizing
		}
		s.cursor++
		s.pending = line{text: s.cfg.Questions[s.cursor], cursor: s.cursor}
		return Speaking
	default:
		return Finalizing
	}
}

func (s *Session) finalizing(ctx context.Context) {
	s.stopUtterance()
	if s.deps.Recorder != nil && s.deps.Recorder.Recording() {
		if _, err := s.deps.Recorder.Stop(); err != nil {
			s.log.Debug("release microphone", "err", err)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	defer cancel()
	id, err := s.deps.Finalizer.Finalize(fctx, feedback.Request{
		InterviewID: s.cfg.InterviewID,
		UserID:      s.cfg.UserID,
		Transcript:  slices.Clone(s.transcript),
	})

	var out Outcome
	if err != nil {
		s.log.Error("finalization failed", "err", err)
		out = Outcome{
			Redirect: "/",
			Err:      errors.Join(s.captureErr, fmt.Errorf("%w: %w", ErrFinalization, err)),
		}
		s.recordFinalization("error")
	} else {
		out = Outcome{
			FeedbackID: id,
			Redirect:   "/interview/" + s.cfg.InterviewID + "/feedback",
			Err:        s.captureErr,
		}
		s.recordFinalization("ok")
	}
	if out.Err != nil {
		out.Error = out.Err.Error()
	}

	s.mu.Lock()
	s.outcome = &out
	s.mu.Unlock()
}

// await runs fn on its own goroutine and waits for the result. When End
// arrives first and cancelOnEnd is set, the call's context is cancelled.
// fn has always returned when await returns; ended reports whether End was
// observed while waiting.
func await[T any](ctx context.Context, s *Session, cancelOnEnd bool, fn func(context.Context) (T, error)) (res T, ended bool, err error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		ch <- result{v, err}
	}()

	endCh := s.endCh
	for {
		select {
		case r := <-ch:
			return r.v, ended, r.err
		case <-endCh:
			ended = true
			endCh = nil
			if cancelOnEnd {
				cancel()
			}
		}
	}
}

func (s *Session) transition(next Phase) {
	if next == s.phase {
		return
	}
	s.log.Debug("interview phase", "from", s.phase, "to", next)
	s.phase = next

	s.mu.Lock()
	s.status.Phase = next
	s.status.Cursor = s.cursor
	s.status.InterviewerTurns = s.interviewerTurns
	s.mu.Unlock()

	s.emit(Event{Type: EventPhase, Phase: next, Asked: s.interviewerTurns, Total: len(s.cfg.Questions)})
}

func (s *Session) appendTurn(t Turn) {
	s.transcript = append(s.transcript, t)

	s.mu.Lock()
	s.status.Transcript = append(s.status.Transcript, t)
	s.status.InterviewerTurns = s.interviewerTurns
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTurn(context.Background(), t.Role)
	}
	s.emit(Event{Type: EventTurn, Turn: &t})
}

func (s *Session) notice(err error) {
	s.log.Warn("interview notice", "err", err)
	s.emit(Event{Type: EventNotice, Code: noticeCode(err), Message: err.Error()})
}

func (s *Session) emit(ev Event) {
	ev.At = time.Now().UTC()
	select {
	case s.events <- ev:
	default:
		s.log.Debug("session event dropped", "type", ev.Type)
	}
}

func (s *Session) stopUtterance() {
	if s.utterance != nil {
		s.utterance.Stop()
		s.utterance = nil
	}
}

func (s *Session) drainStop() {
	select {
	case <-s.stopCh:
	default:
	}
}

func (s *Session) ending() bool {
	select {
	case <-s.endCh:
		return true
	default:
		return false
	}
}

func (s *Session) remaining() int {
	return len(s.cfg.Questions) - s.interviewerTurns
}

func (s *Session) nextScripted() *string {
	if s.cursor+1 >= len(s.cfg.Questions) {
		return nil
	}
	q := s.cfg.Questions[s.cursor+1]
	return &q
}

func (s *Session) recordDecision(label string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDecision(context.Background(), label)
	}
}

func (s *Session) recordFinalization(status string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordFinalization(context.Background(), status)
	}
}

func decisionLabel(k decision.Kind) string {
	if k == decision.Proceed {
		return "proceed"
	}
	return string(k)
}
