// Package feedback scores a finished interview transcript and persists the
// result.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/rehearsa/internal/llmjson"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// Categories are the assessment categories, in report order. The model is
// not allowed to add others.
var Categories = []string{
	"Communication Skills",
	"Technical Knowledge",
	"Problem-Solving",
	"Cultural & Role Fit",
	"Confidence & Clarity",
}

var (
	// ErrMissingFields is returned when the interview or user id is empty.
	ErrMissingFields = errors.New("feedback: missing required fields")

	// ErrInvalidAssessment is returned when the model answer cannot be parsed.
	ErrInvalidAssessment = errors.New("feedback: invalid model assessment")
)

// Request identifies the interview to score.
type Request struct {
	InterviewID string          `json:"interviewId"`
	UserID      string          `json:"userId"`
	Transcript  []types.Message `json:"transcript"`

	// FeedbackID, when set, is used as the id of newly created feedback.
	// Existing feedback for the same interview and user keeps its id.
	FeedbackID string `json:"feedbackId,omitempty"`
}

// Assessment is the scored result before it is stored.
type Assessment struct {
	TotalScore          int                   `json:"totalScore"`
	CategoryScores      []store.CategoryScore `json:"categoryScores"`
	Strengths           []string              `json:"strengths"`
	AreasForImprovement []string              `json:"areasForImprovement"`
	FinalAssessment     string                `json:"finalAssessment"`
}

const systemPrompt = "You are a professional interviewer analyzing a mock interview. " +
	"Your task is to evaluate the candidate based on structured categories."

// Service scores transcripts with an LLM and saves them to a store.
type Service struct {
	llm         llm.Provider
	store       store.FeedbackStore
	temperature float64
	log         *slog.Logger
}

// Option configures a [Service].
type Option func(*Service)

// WithTemperature overrides the sampling temperature. Default 0.2.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New returns a Service.
func New(p llm.Provider, st store.FeedbackStore, opts ...Option) *Service {
	s := &Service{llm: p, store: st, temperature: 0.2, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Finalize scores req.Transcript, upserts the feedback for (InterviewID,
// UserID) and returns the stored feedback id.
func (s *Service) Finalize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.InterviewID) == "" || strings.TrimSpace(req.UserID) == "" {
		return "", ErrMissingFields
	}

	a, err := s.Score(ctx, req.Transcript)
	if err != nil {
		return "", err
	}

	fb := &store.Feedback{
		ID:                  req.FeedbackID,
		InterviewID:         req.InterviewID,
		UserID:              req.UserID,
		TotalScore:          a.TotalScore,
		CategoryScores:      a.CategoryScores,
		Strengths:           a.Strengths,
		AreasForImprovement: a.AreasForImprovement,
		FinalAssessment:     a.FinalAssessment,
		Transcript:          req.Transcript,
	}
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return "", fmt.Errorf("feedback: save: %w", err)
	}
	s.log.Info("feedback saved",
		"interview_id", req.InterviewID,
		"feedback_id", fb.ID,
		"total_score", fb.TotalScore,
		"turns", len(req.Transcript),
	)
	return fb.ID, nil
}

// Score asks the model for an assessment of transcript.
func (s *Service) Score(ctx context.Context, transcript []types.Message) (*Assessment, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: buildPrompt(transcript)}},
		Temperature:  s.temperature,
		JSONObject:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidAssessment)
	}

	var a Assessment
	if err := llmjson.Decode(resp.Content, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAssessment, err)
	}
	normalize(&a)
	return &a, nil
}

// normalize keeps exactly [Categories] in order, clamps every score to
// 0..100 and trims the text lists.
func normalize(a *Assessment) {
	byName := make(map[string]store.CategoryScore, len(a.CategoryScores))
	for _, c := range a.CategoryScores {
		byName[categoryKey(c.Name)] = c
	}
	out := make([]store.CategoryScore, 0, len(Categories))
	for _, name := range Categories {
		c := byName[categoryKey(name)]
		out = append(out, store.CategoryScore{
			Name:    name,
			Score:   clamp(c.Score),
			Comment: strings.TrimSpace(c.Comment),
		})
	}
	a.CategoryScores = out
	a.TotalScore = clamp(a.TotalScore)
	a.Strengths = trimAll(a.Strengths)
	a.AreasForImprovement = trimAll(a.AreasForImprovement)
	a.FinalAssessment = strings.TrimSpace(a.FinalAssessment)
}

func categoryKey(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(name))
}

func clamp(n int) int {
	return min(max(n, 0), 100)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildPrompt(transcript []types.Message) string {
	var b strings.Builder
	b.WriteString("You are an AI interviewer analyzing a mock interview. Evaluate the candidate based on structured categories. ")
	b.WriteString("Be thorough and detailed. Don't be lenient: point out mistakes and areas for improvement.\n\nTranscript:\n")
	if len(transcript) == 0 {
		b.WriteString("(the candidate ended the interview before any question was asked)\n")
	}
	for _, m := range transcript {
		fmt.Fprintf(&b, "- %s: %s\n", m.Role, m.Content)
	}
	b.WriteString(`
Score the candidate from 0 to 100 in these areas. Do not add other categories:
- Communication Skills: Clarity, articulation, structured responses.
- Technical Knowledge: Understanding of key concepts for the role.
- Problem-Solving: Ability to analyze problems and propose solutions.
- Cultural & Role Fit: Alignment with company values and job role.
- Confidence & Clarity: Confidence in responses, engagement, and clarity.

Reply with JSON only:
{"totalScore":0,"categoryScores":[{"name":"Communication Skills","score":0,"comment":"..."}],"strengths":["..."],"areasForImprovement":["..."],"finalAssessment":"..."}`)
	return b.String()
}
