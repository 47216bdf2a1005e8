package similarity

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Tell me about yourself.", "tell me about yourself"},
		{"  Why   Go?  ", "why go"},
		{"Front-end / back-end", "front end back end"},
		{"!!!", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSame(t *testing.T) {
	t.Parallel()
	c := New()
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"punctuation and case", "Tell me about yourself.", "tell me about yourself", true},
		{"small rewording", "Tell me about a time you led a team project", "Tell me about a time you led a project", true},
		{"different questions", "How would you design a rate limiter?", "What is your favourite database?", false},
		{"empty", "", "Why Go?", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Same(tc.a, tc.b); got != tc.want {
				t.Errorf("Same(%q, %q) = %v (score %.3f), want %v", tc.a, tc.b, got, c.Score(tc.a, tc.b), tc.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()
	c := New()
	in := []string{
		"Tell me about yourself.",
		"How do you handle disagreements in code review?",
		"tell me about yourself",
		"Explain how a Go channel works.",
	}
	want := []string{
		"Tell me about yourself.",
		"How do you handle disagreements in code review?",
		"Explain how a Go channel works.",
	}
	if got := c.Dedupe(in); !slices.Equal(got, want) {
		t.Errorf("Dedupe = %q, want %q", got, want)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()
	c := New()
	seen := []string{"Why did you choose Postgres?", "Tell me about yourself."}
	got, ok := c.Find("Tell me about yourself!", seen)
	if !ok || got != "Tell me about yourself." {
		t.Errorf("Find = %q, %v", got, ok)
	}
	if _, ok := c.Find("Describe your ideal team.", seen); ok {
		t.Error("Find matched an unrelated question")
	}
}

func TestWithStrictThreshold(t *testing.T) {
	t.Parallel()
	c := New(WithStrictThreshold(1.01), WithPhoneticThreshold(1.01))
	if c.Same("Tell me about a time you led a team project", "Tell me about a time you led a project") {
		t.Error("thresholds above 1 should only accept identical text")
	}
	if !c.Same("Why Go?", "why go") {
		t.Error("identical normalised text must always match")
	}
}
