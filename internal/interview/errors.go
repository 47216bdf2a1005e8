package interview

import "errors"

// Failure taxonomy. Synthesis, transcription and decision failures are
// absorbed by the session and published as notices. Permission denial and
// finalization failure are reported in the [Outcome].
var (
	// ErrPermissionDenied means the microphone could not be opened. The
	// session is finalized with the transcript collected so far.
	ErrPermissionDenied = errors.New("interview: microphone unavailable")

	// ErrSynthesis means an interviewer line could not be played as audio.
	// The line is shown as text and the session continues.
	ErrSynthesis = errors.New("interview: speech synthesis failed")

	// ErrTranscription means an answer could not be transcribed. An empty
	// answer is recorded instead.
	ErrTranscription = errors.New("interview: transcription failed")

	// ErrDecision means no branching decision could be obtained. The session
	// falls back to the next scripted question or finalizes.
	ErrDecision = errors.New("interview: decision failed")

	// ErrFinalization means the transcript could not be scored or stored.
	ErrFinalization = errors.New("interview: finalization failed")
)

// Session lifecycle errors.
var (
	ErrNoQuestions      = errors.New("interview: no questions")
	ErrNotAttached      = errors.New("interview: audio devices not attached")
	ErrAlreadyAttached  = errors.New("interview: audio devices already attached")
	ErrAlreadyRunning   = errors.New("interview: session already running")
	ErrSessionNotFound  = errors.New("interview: session not found")
	ErrTooManySessions  = errors.New("interview: too many concurrent sessions")
	ErrMissingUser      = errors.New("interview: missing user id")
	ErrTooManyQuestions = errors.New("interview: too many questions")
)
