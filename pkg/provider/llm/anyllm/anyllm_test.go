package anyllm

import (
	"testing"

	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gemini-2.0-flash"); err == nil {
		t.Error("expected error for empty backend name")
	}
	if _, err := New("llamacpp", ""); err == nil {
		t.Error("expected error for llamacpp without a model")
	}
	if _, err := New("carrier-pigeon", "x"); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	for _, role := range []string{types.RoleSystem, types.RoleUser, types.RoleAssistant} {
		got := convertMessage(types.Message{Role: role, Content: "text for " + role})
		if got.Role != role {
			t.Errorf("role = %q, want %q", got.Role, role)
		}
		if got.ContentString() != "text for "+role {
			t.Errorf("content = %q", got.ContentString())
		}
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages:     []types.Message{{Role: types.RoleAssistant, Content: "Q1"}, {Role: types.RoleUser, Content: "A1"}},
		Temperature:  0.4,
		MaxTokens:    256,
	})
	if params.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want 256", params.MaxTokens)
	}

	bare := p.buildParams(llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil {
		t.Error("zero temperature and max tokens must stay unset")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model     string
		ctxWindow int
	}{
		{"gemini-2.0-flash", 1_048_576},
		{"gemini-1.5-pro-latest", 2_097_152},
		{"claude-3-5-sonnet-latest", 200_000},
		{"llama3.1", 32_768},
		{"something-else", 128_000},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).ContextWindow; got != tt.ctxWindow {
			t.Errorf("modelCapabilities(%q).ContextWindow = %d, want %d", tt.model, got, tt.ctxWindow)
		}
	}
}

func TestBuildParams_JSONObjectInstruction(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-2.0-flash"}
	tests := []struct {
		name   string
		system string
		want   string
	}{
		{name: "appended to system prompt", system: "You score interviews.", want: "You score interviews.\n\n" + jsonInstruction},
		{name: "alone without system prompt", want: jsonInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			params := p.buildParams(llm.CompletionRequest{
				SystemPrompt: tt.system,
				Messages:     []types.Message{{Role: types.RoleUser, Content: "transcript"}},
				JSONObject:   true,
			})
			if len(params.Messages) != 2 || params.Messages[0].Role != "system" {
				t.Fatalf("messages = %+v", params.Messages)
			}
			if got := params.Messages[0].ContentString(); got != tt.want {
				t.Errorf("system = %q, want %q", got, tt.want)
			}
		})
	}
}
