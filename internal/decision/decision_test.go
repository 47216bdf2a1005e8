package decision_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	llmmock "github.com/MrWong99/rehearsa/pkg/provider/llm/mock"
	"github.com/MrWong99/rehearsa/pkg/types"
)

func ptr(s string) *string { return &s }

var transcript = []types.Message{
	{Role: types.RoleAssistant, Content: "Tell me about a project you are proud of."},
	{Role: types.RoleUser, Content: "I rewrote our billing service in Go."},
}

func TestDecide_BudgetExhaustedSkipsModel(t *testing.T) {
	t.Parallel()
	for _, remaining := range []int{0, -1} {
		p := &llmmock.Provider{Responses: []string{`{"type":"followup","question":"Why Go?"}`}}
		s := decision.New(p)

		d, err := s.Decide(context.Background(), decision.Request{Messages: transcript, BaseQuestion: ptr("Next?"), Remaining: remaining})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if d.Kind != decision.End {
			t.Errorf("remaining %d: Kind = %q, want end", remaining, d.Kind)
		}
		if n := len(p.Calls()); n != 0 {
			t.Errorf("remaining %d: model called %d times, want 0", remaining, n)
		}
	}
}

func TestDecide_ModelAnswers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		reply     string
		base      *string
		remaining int
		want      decision.Decision
	}{
		{
			name:      "followup kept with budget",
			reply:     `{"type":"followup","question":"What made the rewrite in Go worth the risk?"}`,
			base:      ptr("How do you test concurrent code?"),
			remaining: 3,
			want:      decision.Decision{Kind: decision.Followup, Question: "What made the rewrite in Go worth the risk?"},
		},
		{
			name:      "followup downgraded at one turn left",
			reply:     `{"type":"followup","question":"What made the rewrite in Go worth the risk?"}`,
			base:      ptr("How do you test concurrent code?"),
			remaining: 1,
			want:      decision.Decision{Kind: decision.Proceed},
		},
		{
			name:      "followup at one turn left without base ends",
			reply:     `{"type":"followup","question":"What made the rewrite in Go worth the risk?"}`,
			remaining: 1,
			want:      decision.Decision{Kind: decision.End},
		},
		{
			name:      "base",
			reply:     "```json\n{\"type\":\"base\"}\n```",
			base:      ptr("How do you test concurrent code?"),
			remaining: 2,
			want:      decision.Decision{Kind: decision.Proceed},
		},
		{
			name:      "base without next question ends",
			reply:     `{"type":"base"}`,
			remaining: 2,
			want:      decision.Decision{Kind: decision.End},
		},
		{
			name:      "end",
			reply:     `{"type":"END"}`,
			base:      ptr("How do you test concurrent code?"),
			remaining: 2,
			want:      decision.Decision{Kind: decision.End},
		},
		{
			name:      "repeated question becomes proceed",
			reply:     `{"type":"followup","question":"Tell me about a project you are proud of!"}`,
			base:      ptr("How do you test concurrent code?"),
			remaining: 3,
			want:      decision.Decision{Kind: decision.Proceed},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &llmmock.Provider{Responses: []string{tc.reply}}
			s := decision.New(p)
			got, err := s.Decide(context.Background(), decision.Request{Messages: transcript, BaseQuestion: tc.base, Remaining: tc.remaining})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got != tc.want {
				t.Errorf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecide_InvalidModelOutput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Let's move on."},
		{"unknown type", `{"type":"skip"}`},
		{"followup too short", `{"type":"followup","question":"Ok"}`},
		{"followup too long", `{"type":"followup","question":"` + strings.Repeat("why ", 60) + `"}`},
		{"followup empty", `{"type":"followup"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := decision.New(&llmmock.Provider{Responses: []string{tc.reply}})
			_, err := s.Decide(context.Background(), decision.Request{Messages: transcript, BaseQuestion: ptr("Next?"), Remaining: 3})
			if !errors.Is(err, decision.ErrInvalidDecision) {
				t.Errorf("err = %v, want ErrInvalidDecision", err)
			}
		})
	}
}

func TestDecide_ModelError(t *testing.T) {
	t.Parallel()
	boom := errors.New("upstream 503")
	s := decision.New(&llmmock.Provider{CompleteErr: boom})
	_, err := s.Decide(context.Background(), decision.Request{Messages: transcript, Remaining: 2})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped upstream error", err)
	}
}

func TestDecide_NoMessages(t *testing.T) {
	t.Parallel()
	s := decision.New(&llmmock.Provider{})
	if _, err := s.Decide(context.Background(), decision.Request{Remaining: 2}); !errors.Is(err, decision.ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
}

func TestDecide_Prompt(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"type":"base"}`}}
	s := decision.New(p, decision.WithTemperature(0.2))

	_, err := s.Decide(context.Background(), decision.Request{Messages: transcript, BaseQuestion: ptr("How do you test concurrent code?"), Remaining: 2})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", req.Temperature)
	}
	if req.SystemPrompt == "" {
		t.Error("SystemPrompt is empty")
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{
		"interviewer: Tell me about a project you are proud of.",
		"candidate: I rewrote our billing service in Go.",
		"Next prepared question: How do you test concurrent code?",
		"Interviewer turns left: 2",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestEnforce(t *testing.T) {
	t.Parallel()
	f := decision.Decision{Kind: decision.Followup, Question: "Why?"}
	if got := decision.Enforce(f, decision.Request{Remaining: 0, BaseQuestion: ptr("x")}); got.Kind != decision.End {
		t.Errorf("remaining 0 → %v, want end", got)
	}
	if got := decision.Enforce(f, decision.Request{Remaining: 1, BaseQuestion: ptr("x")}); got.Kind != decision.Proceed {
		t.Errorf("remaining 1 → %v, want base", got)
	}
	if got := decision.Enforce(f, decision.Request{Remaining: 2}); got != f {
		t.Errorf("remaining 2 → %v, want followup unchanged", got)
	}
}

func TestDecision_String(t *testing.T) {
	t.Parallel()
	if got := (decision.Decision{Kind: decision.Followup, Question: "Why?"}).String(); got != `followup("Why?")` {
		t.Errorf("String = %s", got)
	}
	if got := (decision.Decision{Kind: decision.End}).String(); got != "end" {
		t.Errorf("String = %s", got)
	}
}
