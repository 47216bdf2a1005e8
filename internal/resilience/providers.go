package resilience

import (
	"context"

	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/provider/stt"
	"github.com/MrWong99/rehearsa/pkg/provider/tts"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// STTFallback implements [stt.Provider] with failover from a primary to
// secondary transcription backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports per-backend breaker states.
func (f *STTFallback) States() map[string]State { return f.group.States() }

// Transcribe sends the request to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTSFallback implements [tts.Provider] with failover across synthesis
// backends. The primary receives the voice profile as given; fallbacks get it
// without the ID and speak with their own default voice.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider. Voice IDs are specific
// to the primary backend, so the fallback receives the profile without one.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, defaultVoice{provider})
}

type defaultVoice struct{ tts.Provider }

func (d defaultVoice) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Clip, error) {
	voice.ID = ""
	return d.Provider.Synthesize(ctx, text, voice)
}

// States reports per-backend breaker states.
func (f *TTSFallback) States() map[string]State { return f.group.States() }

// Synthesize converts text using the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (tts.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// LLMFallback implements [llm.Provider] with failover across model backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports per-backend breaker states.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// Complete sends the request to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the primary backend's capabilities.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.members[0].value.Capabilities()
}
