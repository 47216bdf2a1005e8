package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/rehearsa/internal/config"
	"github.com/MrWong99/rehearsa/internal/questions"
	"github.com/MrWong99/rehearsa/internal/store"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("REHEARSA_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("REHEARSA_TEST_DOTENV") })

	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv("REHEARSA_TEST_DOTENV"); got != "from-file" {
		t.Errorf("REHEARSA_TEST_DOTENV = %q", got)
	}

	if err := loadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if err := loadEnv(""); err != nil {
		t.Errorf("empty path: %v", err)
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:         config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"},
		STT:         config.ProviderEntry{Name: "deepgram", APIKey: "dg-test", Model: "nova-2"},
		STTFallback: config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:9000"},
		TTS:         config.ProviderEntry{Name: "elevenlabs", APIKey: "el-test", Options: map[string]any{"voice": "rachel"}},
		TTSFallback: config.ProviderEntry{Name: "not-a-provider"},
	}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.LLM == nil || ps.STT == nil || ps.STTFallback == nil || ps.TTS == nil {
		t.Errorf("providers = %+v", ps)
	}
	if ps.LLMFallback != nil {
		t.Error("unconfigured llm fallback was created")
	}
	if ps.TTSFallback != nil {
		t.Error("unregistered tts fallback was created")
	}
}

func TestRegisterBuiltinProviders_Names(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	for kind, want := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, name := range want {
			found := false
			for _, g := range got {
				if g == name {
					found = true
				}
			}
			if !found {
				t.Errorf("%s provider %q not registered", kind, name)
			}
		}
	}
}

type fakeGenerator struct{ got questions.Request }

func (f *fakeGenerator) Generate(_ context.Context, req questions.Request) (*store.Interview, error) {
	f.got = req
	return &store.Interview{
		ID:        "iv-1",
		Role:      req.Role,
		Level:     req.Level,
		Type:      req.Type,
		TechStack: questions.SplitTechStack(req.TechStack),
		Questions: []string{"What is a goroutine?", "When would you use a mutex?"},
	}, nil
}

func TestGenerateQuestions_PrintsQuestionSetYAML(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	var out bytes.Buffer
	err := generateQuestions(context.Background(), &out, gen, &questionsOptions{
		role: "Backend Engineer", level: "Senior", kind: "technical", techStack: "go, postgres", amount: 2,
	})
	if err != nil {
		t.Fatalf("generateQuestions: %v", err)
	}
	if gen.got.Amount != 2 || gen.got.UserID == "" {
		t.Errorf("request = %+v", gen.got)
	}

	var doc struct {
		QuestionSets []config.QuestionSetConfig `yaml:"question_sets"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out.String())
	}
	if len(doc.QuestionSets) != 1 {
		t.Fatalf("question sets = %d", len(doc.QuestionSets))
	}
	qs := doc.QuestionSets[0]
	if qs.Name != "senior-backend-engineer" || qs.Type != config.QuestionsTechnical || len(qs.Questions) != 2 {
		t.Errorf("question set = %+v", qs)
	}
	if len(qs.TechStack) != 2 || qs.TechStack[1] != "postgres" {
		t.Errorf("techstack = %q", qs.TechStack)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "questions"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q: %v", name, err)
		}
	}
}

func TestMigrate_RequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", path, "--env-file", ""})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("Execute = %v, want postgres_dsn error", err)
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "openai", Model: "a-rather-long-model-name"},
	}}
	cfg.ApplyDefaults()

	var out bytes.Buffer
	printStartupSummary(&out, cfg)
	s := out.String()
	for _, want := range []string{"openai / a-rathe...", "(not configured)", "memory", ":8080"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
