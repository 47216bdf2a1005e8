// Package questions generates scripted interview question sets with an LLM
// and stores them as interviews.
package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/rehearsa/internal/llmjson"
	"github.com/MrWong99/rehearsa/internal/similarity"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// Limits applied to every generated set.
const (
	MinAmount      = 1
	MaxAmount      = 50
	MaxQuestionLen = 240
)

var (
	// ErrMissingFields is returned when a required request field is empty.
	ErrMissingFields = errors.New("questions: missing required fields")

	// ErrNoQuestions is returned when the model produced no usable question.
	ErrNoQuestions = errors.New("questions: failed to generate questions")
)

// Request describes the interview to prepare.
type Request struct {
	UserID string `json:"userid"`
	Role   string `json:"role"`
	Level  string `json:"level"`

	// Type is the focus: behavioural, technical or mixed.
	Type string `json:"type"`

	// TechStack is a comma-separated list.
	TechStack string `json:"techstack"`

	// Amount is clamped to [MinAmount, MaxAmount].
	Amount int `json:"amount"`
}

// Generator prepares question sets.
type Generator struct {
	llm         llm.Provider
	store       store.InterviewStore
	similar     *similarity.Checker
	temperature float64
	log         *slog.Logger
}

// Option configures a [Generator].
type Option func(*Generator)

// WithSimilarity sets the near-duplicate checker.
func WithSimilarity(c *similarity.Checker) Option {
	return func(g *Generator) { g.similar = c }
}

// WithTemperature overrides the sampling temperature. Default 0.95.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// New returns a Generator that saves sets to st.
func New(p llm.Provider, st store.InterviewStore, opts ...Option) *Generator {
	g := &Generator{
		llm:         p,
		store:       st,
		similar:     similarity.New(),
		temperature: 0.95,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate asks the model for req.Amount questions, cleans them up and stores
// the result as a new interview.
func (g *Generator) Generate(ctx context.Context, req Request) (*store.Interview, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	amount := ClampAmount(req.Amount)

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: buildPrompt(req, amount)}},
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("questions: complete: %w", err)
	}
	if resp == nil {
		return nil, ErrNoQuestions
	}

	var raw []any
	if err := llmjson.Decode(resp.Content, &raw); err != nil {
		g.log.Warn("question generation returned no JSON array", "err", err)
	}
	qs := g.Clean(raw, amount)
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	iv := &store.Interview{
		UserID:    req.UserID,
		Role:      strings.TrimSpace(req.Role),
		Level:     strings.TrimSpace(req.Level),
		Type:      strings.ToLower(strings.TrimSpace(req.Type)),
		TechStack: SplitTechStack(req.TechStack),
		Questions: qs,
	}
	if err := g.store.CreateInterview(ctx, iv); err != nil {
		return nil, fmt.Errorf("questions: store interview: %w", err)
	}
	g.log.Info("interview generated", "interview_id", iv.ID, "role", iv.Role, "questions", len(qs))
	return iv, nil
}

// Clean keeps the string entries of raw, trims them, drops empty and overlong
// ones, removes exact and near duplicates, and truncates to amount.
func (g *Generator) Clean(raw []any, amount int) []string {
	var qs []string
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || utf8.RuneCountInString(s) > MaxQuestionLen {
			continue
		}
		qs = append(qs, s)
	}
	qs = g.similar.Dedupe(qs)
	if len(qs) > amount {
		qs = qs[:amount]
	}
	return qs
}

// ClampAmount bounds n to [MinAmount, MaxAmount].
func ClampAmount(n int) int {
	return min(max(n, MinAmount), MaxAmount)
}

// SplitTechStack splits a comma-separated list and drops empty entries.
func SplitTechStack(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r Request) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"userid":    r.UserID,
		"role":      r.Role,
		"level":     r.Level,
		"type":      r.Type,
		"techstack": r.TechStack,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

func buildPrompt(req Request, amount int) string {
	return fmt.Sprintf(`Prepare %d interview questions.
Context:
- Role: %s
- Level: %s
- Tech stack: %s
- Focus: %s (balance behavioural and technical accordingly)
Requirements:
- Produce exactly %d distinct questions.
- Ensure variety across topics and difficulty; avoid similar phrasing.
- No preambles or numbering, no extra commentary.
- Avoid characters that break speech synthesis like "/" or "*".
Output strictly as a JSON array of strings, e.g. ["Question 1", "Question 2"].`,
		amount, req.Role, req.Level, req.TechStack, req.Type, amount)
}
