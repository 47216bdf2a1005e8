package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/provider/stt"
	"github.com/MrWong99/rehearsa/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when nothing is
// registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is the name table for a single provider kind.
type factories[T any] struct {
	kind  string
	byKey map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, byKey: make(map[string]Factory[T])}
}

// create looks up entry.Name while holding mu and runs the factory after
// releasing it.
func create[T any](mu *sync.RWMutex, f factories[T], entry ProviderEntry) (T, error) {
	mu.RLock()
	build, ok := f.byKey[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return build(entry)
}

// Registry resolves the provider names used in the config file to
// constructors. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns a registry with no providers.
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

// RegisterLLM makes name resolvable by [Registry.CreateLLM]. A later call
// with the same name replaces the earlier factory.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.byKey[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.byKey[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.byKey[name] = factory
	r.mu.Unlock()
}

// CreateLLM builds the LLM named by entry.Name. The error wraps
// [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, entry)
}

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, entry)
}

func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(&r.mu, r.tts, entry)
}

// Names lists the registered names for kind ("llm", "stt" or "tts") in
// sorted order.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm.byKey))
	case "stt":
		return slices.Sorted(maps.Keys(r.stt.byKey))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts.byKey))
	}
	return nil
}
