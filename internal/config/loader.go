package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxQuestionLength bounds a single scripted question in characters.
const maxQuestionLength = 240

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"stt": {"deepgram", "whisper"},
	"tts": {"deepgram", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// placeholders, applies defaults and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} placeholders in secrets and connection strings.
func expandEnv(cfg *Config) {
	for _, e := range []*ProviderEntry{
		&cfg.Providers.LLM, &cfg.Providers.LLMFallback,
		&cfg.Providers.STT, &cfg.Providers.STTFallback,
		&cfg.Providers.TTS, &cfg.Providers.TTSFallback,
	} {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	cfg.Store.PostgresDSN = os.ExpandEnv(cfg.Store.PostgresDSN)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	p := cfg.Providers
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("llm", p.LLMFallback.Name)
	validateProviderName("stt", p.STT.Name)
	validateProviderName("stt", p.STTFallback.Name)
	validateProviderName("tts", p.TTS.Name)
	validateProviderName("tts", p.TTSFallback.Name)
	for kind, pair := range map[string][2]ProviderEntry{
		"llm": {p.LLM, p.LLMFallback},
		"stt": {p.STT, p.STTFallback},
		"tts": {p.TTS, p.TTSFallback},
	} {
		if !pair[0].Configured() && pair[1].Configured() {
			errs = append(errs, fmt.Errorf("providers.%s_fallback is set but providers.%s is not", kind, kind))
		}
	}
	if !p.LLM.Configured() {
		slog.Warn("no LLM provider configured; decisions fall back to the scripted order and feedback cannot be scored")
	}

	iv := cfg.Interview
	if iv.PlaybackRate != 0 && (iv.PlaybackRate < MinPlaybackRate || iv.PlaybackRate > MaxPlaybackRate) {
		errs = append(errs, fmt.Errorf("interview.playback_rate %.2f is out of range [%.2f, %.2f]", iv.PlaybackRate, MinPlaybackRate, MaxPlaybackRate))
	}
	if iv.ContentType != "" && !strings.HasPrefix(iv.ContentType, "audio/") {
		errs = append(errs, fmt.Errorf("interview.content_type %q must be an audio/* media type", iv.ContentType))
	}
	if iv.MaxQuestions < 0 || iv.MaxQuestions > DefaultMaxQuestions {
		errs = append(errs, fmt.Errorf("interview.max_questions %d is out of range [1, %d]", iv.MaxQuestions, DefaultMaxQuestions))
	}
	if iv.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("interview.max_sessions %d must not be negative", iv.MaxSessions))
	}
	for name, d := range map[string]int64{
		"synthesis":     int64(iv.Timeouts.Synthesis),
		"transcription": int64(iv.Timeouts.Transcription),
		"decision":      int64(iv.Timeouts.Decision),
		"finalization":  int64(iv.Timeouts.Finalization),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("interview.timeouts.%s must not be negative", name))
		}
	}

	seen := make(map[string]int, len(cfg.QuestionSets))
	for i, qs := range cfg.QuestionSets {
		prefix := fmt.Sprintf("question_sets[%d]", i)
		if qs.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[qs.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of question_sets[%d]", prefix, qs.Name, prev))
			}
			seen[qs.Name] = i
		}
		if qs.Type != "" && !qs.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: behavioural, technical, mixed", prefix, qs.Type))
		}
		if len(qs.Questions) == 0 {
			errs = append(errs, fmt.Errorf("%s.questions must not be empty", prefix))
		}
		if iv.MaxQuestions > 0 && len(qs.Questions) > iv.MaxQuestions {
			errs = append(errs, fmt.Errorf("%s has %d questions; interview.max_questions is %d", prefix, len(qs.Questions), iv.MaxQuestions))
		}
		for j, q := range qs.Questions {
			switch {
			case strings.TrimSpace(q) == "":
				errs = append(errs, fmt.Errorf("%s.questions[%d] is empty", prefix, j))
			case len([]rune(q)) > maxQuestionLength:
				errs = append(errs, fmt.Errorf("%s.questions[%d] exceeds %d characters", prefix, j, maxQuestionLength))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
