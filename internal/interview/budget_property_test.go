package interview

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/MrWong99/rehearsa/internal/decision"
)

// TestSession_BudgetProperty drives sessions with arbitrary decision
// sequences and failures and checks the turn budget and finalization.
func TestSession_BudgetProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "questions")
		questions := make([]string, n)
		for i := range questions {
			questions[i] = "Scripted question number " + string(rune('A'+i)) + "?"
		}

		kinds := rapid.SliceOfN(rapid.SampledFrom([]decision.Kind{
			decision.Followup, decision.Proceed, decision.End,
		}), 0, 12).Draw(rt, "decisions")
		decisions := make([]decision.Decision, len(kinds))
		for i, k := range kinds {
			decisions[i] = decision.Decision{Kind: k}
			if k == decision.Followup {
				decisions[i].Question = "Could you expand on that point?"
			}
		}
		decisionFails := rapid.Bool().Draw(rt, "decision_fails")
		transcriptionFails := rapid.Bool().Draw(rt, "transcription_fails")
		endAfter := rapid.IntRange(0, 8).Draw(rt, "end_after_answers")

		h := newHarness(t, questions)
		h.decider.decisions = decisions
		if decisionFails {
			h.decider.err = errBoom
		}
		if transcriptionFails {
			h.transcriber.err = errBoom
		}

		done := make(chan Outcome, 1)
		go func() {
			out, _ := h.session.Run(context.Background())
			done <- out
		}()

		deadline := time.After(5 * time.Second)
		listens := 0
	loop:
		for {
			select {
			case ev, ok := <-h.session.Events():
				if !ok {
					break loop
				}
				if ev.Type == EventPhase && ev.Phase == Listening {
					listens++
					if endAfter > 0 && listens == endAfter {
						h.session.End()
					} else {
						h.session.StopAnswer()
					}
				}
			case <-deadline:
				rt.Fatalf("session did not terminate")
			}
		}
		<-done

		calls := h.finalizer.Calls()
		if len(calls) != 1 {
			rt.Fatalf("finalize calls = %d, want exactly 1", len(calls))
		}
		asked := len(interviewerLines(calls[0].Transcript))
		if asked > n {
			rt.Fatalf("interviewer turns %d exceed budget %d", asked, n)
		}
		if asked == 0 {
			rt.Fatalf("no question asked")
		}
		for _, req := range h.decider.Requests() {
			if req.Remaining <= 0 {
				rt.Fatalf("decision requested with remaining %d", req.Remaining)
			}
		}
		if h.mic.OpenStreams() != 0 {
			rt.Fatalf("microphone left open")
		}
	})
}
