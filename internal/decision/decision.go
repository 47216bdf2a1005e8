// Package decision chooses the interviewer's next move after each answer.
//
// A [Service] asks a language model whether to probe the last answer with a
// short follow-up, proceed to the next scripted question, or end the
// interview. The remaining-turn budget is enforced locally before and after
// the model call: with no budget left the model is never asked, and with
// exactly one turn left a follow-up is never returned.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/rehearsa/internal/llmjson"
	"github.com/MrWong99/rehearsa/internal/similarity"
	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// Kind is the branch an interviewer takes.
type Kind string

// Wire names match the decision endpoint contract: "base" means proceed to
// the next scripted question.
const (
	Followup Kind = "followup"
	Proceed  Kind = "base"
	End      Kind = "end"
)

// Follow-up length bounds in characters.
const (
	MinFollowupLen = 3
	MaxFollowupLen = 200
)

var (
	// ErrNoMessages is returned when the transcript is empty.
	ErrNoMessages = errors.New("decision: missing conversation messages")

	// ErrInvalidDecision is returned when the model answer does not fit the contract.
	ErrInvalidDecision = errors.New("decision: invalid model decision")
)

// Decision is the outcome of one decision round.
type Decision struct {
	Kind Kind `json:"type"`

	// Question is the follow-up text. Set only for [Followup].
	Question string `json:"question,omitempty"`
}

// String returns a compact representation for logs.
func (d Decision) String() string {
	if d.Kind == Followup {
		return fmt.Sprintf("followup(%q)", d.Question)
	}
	return string(d.Kind)
}

// Request carries everything needed to decide.
type Request struct {
	// Messages is the transcript so far, oldest first.
	Messages []types.Message `json:"messages"`

	// BaseQuestion is the next scripted question, nil when none is left.
	BaseQuestion *string `json:"baseQuestion"`

	// Remaining is the number of interviewer turns still allowed.
	Remaining int `json:"remainingCount"`
}

// Enforce applies the budget contract to d: no budget means End, and with a
// single turn left a follow-up becomes Proceed (or End when no scripted
// question remains). Proceed without a scripted question also becomes End.
func Enforce(d Decision, req Request) Decision {
	switch {
	case req.Remaining <= 0:
		return Decision{Kind: End}
	case d.Kind == Followup && req.Remaining == 1:
		d = Decision{Kind: Proceed}
	}
	if d.Kind == Proceed && req.BaseQuestion == nil {
		return Decision{Kind: End}
	}
	return d
}

const defaultTemperature = 0.4

const systemPrompt = "You assist a live mock interview by choosing the interviewer's next step: " +
	"ask one short follow-up, move on to the next prepared question, or close the interview. " +
	"Follow-ups are brief and refer to what the candidate just said."

// Service decides with an LLM. It is stateless and safe for concurrent use.
type Service struct {
	llm         llm.Provider
	temperature float64
	similar     *similarity.Checker
}

// Option configures a [Service].
type Option func(*Service)

// WithTemperature overrides the sampling temperature. Default 0.4.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithSimilarity sets the checker used to reject follow-ups that repeat an
// earlier interviewer question.
func WithSimilarity(c *similarity.Checker) Option {
	return func(s *Service) { s.similar = c }
}

// New returns a Service backed by p.
func New(p llm.Provider, opts ...Option) *Service {
	s := &Service{
		llm:         p,
		temperature: defaultTemperature,
		similar:     similarity.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Decide returns the next step for req. The model is not called when the
// budget is exhausted.
func (s *Service) Decide(ctx context.Context, req Request) (Decision, error) {
	if req.Remaining <= 0 {
		return Decision{Kind: End}, nil
	}
	if len(req.Messages) == 0 {
		return Decision{}, ErrNoMessages
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: buildPrompt(req)}},
		Temperature:  s.temperature,
		MaxTokens:    200,
		JSONObject:   true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("decision: complete: %w", err)
	}
	if resp == nil {
		return Decision{}, fmt.Errorf("%w: empty response", ErrInvalidDecision)
	}

	d, err := parse(resp.Content)
	if err != nil {
		return Decision{}, err
	}
	if d.Kind == Followup && s.repeats(d.Question, req.Messages) {
		d = Decision{Kind: Proceed}
	}
	return Enforce(d, req), nil
}

func (s *Service) repeats(q string, msgs []types.Message) bool {
	var asked []string
	for _, m := range msgs {
		if m.Role == types.RoleAssistant {
			asked = append(asked, m.Content)
		}
	}
	_, dup := s.similar.Find(q, asked)
	return dup
}

// parse decodes and validates a model answer.
func parse(content string) (Decision, error) {
	var d Decision
	if err := llmjson.Decode(content, &d); err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}
	d.Kind = Kind(strings.ToLower(strings.TrimSpace(string(d.Kind))))
	switch d.Kind {
	case Followup:
		d.Question = strings.TrimSpace(d.Question)
		n := utf8.RuneCountInString(d.Question)
		if n < MinFollowupLen || n > MaxFollowupLen {
			return Decision{}, fmt.Errorf("%w: follow-up length %d outside [%d, %d]", ErrInvalidDecision, n, MinFollowupLen, MaxFollowupLen)
		}
	case Proceed, End:
		d.Question = ""
	default:
		return Decision{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDecision, d.Kind)
	}
	return d, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Transcript of the interview so far, most recent last:\n")
	for _, m := range req.Messages {
		speaker := "candidate"
		if m.Role == types.RoleAssistant {
			speaker = "interviewer"
		}
		fmt.Fprintf(&b, "- %s: %s\n", speaker, m.Content)
	}

	next := "<none>"
	if req.BaseQuestion != nil {
		next = *req.BaseQuestion
	}
	fmt.Fprintf(&b, "\nNext prepared question: %s\n", next)
	fmt.Fprintf(&b, "Interviewer turns left: %d\n", req.Remaining)

	b.WriteString(`
Choose exactly one:
- "followup": only if more than one interviewer turn is left and the last answer was vague, very short, or worth probing. Ask one natural question of 6 to 15 words about that answer. Never repeat an earlier question.
- "base": move on to the next prepared question. Do not restate it.
- "end": no prepared question is left and no follow-up is warranted.
With exactly one turn left, never choose "followup".

Reply with JSON only, no prose: {"type":"followup","question":"..."} or {"type":"base"} or {"type":"end"}.`)
	return b.String()
}
