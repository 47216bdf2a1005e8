package interview

import (
	"errors"
	"time"
)

// EventType names a session event.
type EventType string

// Event types published on [Session.Events].
const (
	EventPhase   EventType = "phase"
	EventTurn    EventType = "turn"
	EventSpeak   EventType = "speak"
	EventNotice  EventType = "notice"
	EventOutcome EventType = "outcome"
)

// Notice codes carried by [EventNotice].
const (
	NoticeSynthesis     = "synthesis_failed"
	NoticeTranscription = "transcription_failed"
	NoticeDecision      = "decision_fallback"
	NoticePermission    = "permission_denied"
)

// Event is one observable step of a session. Only the fields relevant to
// Type are set.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	// Phase is set for EventPhase.
	Phase Phase `json:"phase,omitempty"`

	// Asked and Total report interviewer turns used out of the budget.
	// Set for EventPhase.
	Asked int `json:"asked,omitempty"`
	Total int `json:"total,omitempty"`

	// Turn is set for EventTurn.
	Turn *Turn `json:"turn,omitempty"`

	// Text and Followup are set for EventSpeak.
	Text     string `json:"text,omitempty"`
	Followup bool   `json:"followup,omitempty"`

	// Code and Message are set for EventNotice.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Outcome is set for EventOutcome.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Outcome is the result of a terminated session.
type Outcome struct {
	// FeedbackID identifies the stored feedback. Empty when finalization failed.
	FeedbackID string `json:"feedbackId,omitempty"`

	// Redirect is where the candidate should be taken next: the feedback
	// page on success, "/" otherwise.
	Redirect string `json:"redirect"`

	// Err holds surfaced failures: [ErrFinalization] and [ErrPermissionDenied].
	Err error `json:"-"`

	// Error is Err rendered for transport.
	Error string `json:"error,omitempty"`
}

// Failed reports whether finalization failed.
func (o Outcome) Failed() bool { return errors.Is(o.Err, ErrFinalization) }

func noticeCode(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return NoticePermission
	case errors.Is(err, ErrSynthesis):
		return NoticeSynthesis
	case errors.Is(err, ErrTranscription):
		return NoticeTranscription
	case errors.Is(err, ErrDecision):
		return NoticeDecision
	default:
		return "error"
	}
}
