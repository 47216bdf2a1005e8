// Package config provides the configuration schema, loader, and provider
// registry for the rehearsa interview service.
//
// Configuration is loaded once at startup and is read-only afterwards; every
// session shares the same immutable [Config].
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QuestionType selects the flavour of a generated question set.
type QuestionType string

const (
	QuestionsBehavioural QuestionType = "behavioural"
	QuestionsTechnical   QuestionType = "technical"
	QuestionsMixed       QuestionType = "mixed"
)

// IsValid reports whether q is a recognised question type.
func (q QuestionType) IsValid() bool {
	switch q {
	case QuestionsBehavioural, QuestionsTechnical, QuestionsMixed:
		return true
	}
	return false
}

// Playback rate bounds. Rates outside the range are clamped at use and
// rejected at load.
const (
	MinPlaybackRate     = 0.7
	MaxPlaybackRate     = 1.25
	DefaultPlaybackRate = 1.05
)

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr           = ":8080"
	DefaultContentType          = "audio/webm"
	DefaultMaxQuestions         = 50
	DefaultMaxSessions          = 64
	DefaultSynthesisTimeout     = 15 * time.Second
	DefaultTranscriptionTimeout = 20 * time.Second
	DefaultDecisionTimeout      = 10 * time.Second
	DefaultFinalizationTimeout  = 60 * time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Providers    ProvidersConfig     `yaml:"providers"`
	Interview    InterviewConfig     `yaml:"interview"`
	Store        StoreConfig         `yaml:"store"`
	QuestionSets []QuestionSetConfig `yaml:"question_sets"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr, when set, serves /metrics on a separate listener.
	// Empty means /metrics is served on ListenAddr.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TraceSampleRatio samples root traces in (0, 1). Zero samples all.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`

	// AllowedOrigins lists host patterns accepted for websocket upgrades
	// from other origins (e.g., "app.example.com", "*.example.com").
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// external collaborator. Each entry selects a named provider registered in
// the [Registry]. Fallback entries are optional secondaries tried once when
// the primary fails.
type ProvidersConfig struct {
	LLM         ProviderEntry `yaml:"llm"`
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
	STT         ProviderEntry `yaml:"stt"`
	STTFallback ProviderEntry `yaml:"stt_fallback"`
	TTS         ProviderEntry `yaml:"tts"`
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. "${VAR}" placeholders are
	// expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// InterviewConfig tunes the turn-taking orchestrator.
type InterviewConfig struct {
	// Voice is the synthesis voice identifier (e.g., "aura-2-odysseus-en").
	Voice string `yaml:"voice"`

	// PlaybackRate is the speaking-rate multiplier in [0.7, 1.25].
	PlaybackRate float64 `yaml:"playback_rate"`

	// ContentType labels captured audio when the client does not send one.
	ContentType string `yaml:"content_type"`

	// MaxQuestions caps the size of a scripted question set.
	MaxQuestions int `yaml:"max_questions"`

	// MaxSessions bounds concurrently running interview sessions.
	MaxSessions int `yaml:"max_sessions"`

	// Language is passed to transcription (e.g., "en").
	Language string `yaml:"language"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds the ceiling for each external call. Expiry counts as
// a failure of that step.
type TimeoutsConfig struct {
	Synthesis     time.Duration `yaml:"synthesis"`
	Transcription time.Duration `yaml:"transcription"`
	Decision      time.Duration `yaml:"decision"`
	Finalization  time.Duration `yaml:"finalization"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty selects the
	// in-memory store. "${VAR}" placeholders are expanded.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MaxConns caps the pgx pool size. Zero uses the pgxpool default.
	MaxConns int32 `yaml:"max_conns"`
}

// QuestionSetConfig is a named, inline scripted question list that sessions
// can start from by name.
type QuestionSetConfig struct {
	Name      string       `yaml:"name"`
	Role      string       `yaml:"role"`
	Level     string       `yaml:"level"`
	Type      QuestionType `yaml:"type"`
	TechStack []string     `yaml:"techstack"`
	Questions []string     `yaml:"questions"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	iv := &c.Interview
	if iv.PlaybackRate == 0 {
		iv.PlaybackRate = DefaultPlaybackRate
	}
	if iv.ContentType == "" {
		iv.ContentType = DefaultContentType
	}
	if iv.MaxQuestions == 0 {
		iv.MaxQuestions = DefaultMaxQuestions
	}
	if iv.MaxSessions == 0 {
		iv.MaxSessions = DefaultMaxSessions
	}
	if iv.Language == "" {
		iv.Language = "en"
	}
	if iv.Timeouts.Synthesis == 0 {
		iv.Timeouts.Synthesis = DefaultSynthesisTimeout
	}
	if iv.Timeouts.Transcription == 0 {
		iv.Timeouts.Transcription = DefaultTranscriptionTimeout
	}
	if iv.Timeouts.Decision == 0 {
		iv.Timeouts.Decision = DefaultDecisionTimeout
	}
	if iv.Timeouts.Finalization == 0 {
		iv.Timeouts.Finalization = DefaultFinalizationTimeout
	}
}

// QuestionSet returns the named question set, if any.
func (c *Config) QuestionSet(name string) (QuestionSetConfig, bool) {
	for _, qs := range c.QuestionSets {
		if qs.Name == name {
			return qs, true
		}
	}
	return QuestionSetConfig{}, false
}
