package interview

// Phase is a state of the turn-taking state machine.
type Phase string

// Phases in the order a regular session moves through them. After Deciding
// the session returns to Speaking or moves on to Finalizing.
const (
	Idle         Phase = "idle"
	Speaking     Phase = "speaking"
	Listening    Phase = "listening"
	Transcribing Phase = "transcribing"
	Deciding     Phase = "deciding"
	Finalizing   Phase = "finalizing"
	Terminated   Phase = "terminated"
)

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool { return p == Terminated }
