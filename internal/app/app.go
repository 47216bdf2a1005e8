// Package app wires all rehearsa subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rehearsa/internal/capture"
	"github.com/MrWong99/rehearsa/internal/config"
	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/feedback"
	"github.com/MrWong99/rehearsa/internal/gateway"
	"github.com/MrWong99/rehearsa/internal/health"
	"github.com/MrWong99/rehearsa/internal/interview"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/playback"
	"github.com/MrWong99/rehearsa/internal/questions"
	"github.com/MrWong99/rehearsa/internal/resilience"
	"github.com/MrWong99/rehearsa/internal/server"
	"github.com/MrWong99/rehearsa/internal/similarity"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/internal/store/memstore"
	"github.com/MrWong99/rehearsa/internal/store/postgres"
	"github.com/MrWong99/rehearsa/pkg/audio"
	"github.com/MrWong99/rehearsa/pkg/provider/llm"
	"github.com/MrWong99/rehearsa/pkg/provider/stt"
	"github.com/MrWong99/rehearsa/pkg/provider/tts"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// drainTimeout bounds how long Run waits for in-flight requests once ctx
// is cancelled.
const drainTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by the CLI via the config registry.
type Providers struct {
	LLM         llm.Provider
	LLMFallback llm.Provider
	STT         stt.Provider
	STTFallback stt.Provider
	TTS         tts.Provider
	TTSFallback tts.Provider
}

// App owns all subsystem lifetimes and serves the rehearsa HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	store          store.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler
	health         *health.Handler
	sessions       *interview.Manager
	handler        http.Handler

	// Resolved providers after fallback wrapping.
	llmP llm.Provider
	sttP stt.Provider
	ttsP tts.Provider

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics instruments instead of using
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection and
// migration, question-set seeding, provider fallback wrapping, service
// construction and HTTP routing.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Question sets ─────────────────────────────────────────────────
	if err := a.seedQuestionSets(ctx); err != nil {
		return nil, fmt.Errorf("app: seed question sets: %w", err)
	}

	// ── 3. Providers ─────────────────────────────────────────────────────
	a.initProviders()

	// ── 4. Services, sessions and routing ────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL or falls back to the in-memory store.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("store.postgres_dsn not set, interviews and feedback are kept in memory")
		a.store = memstore.New()
		return nil
	}

	st, err := postgres.NewStore(ctx, dsn, a.cfg.Store.MaxConns)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	return nil
}

// QuestionSetID is the interview id a configured question set is stored
// under. Sessions start from it like from any other interview.
func QuestionSetID(name string) string { return "set-" + name }

// seedQuestionSets stores each configured question set once. Sets that
// already exist are left untouched.
func (a *App) seedQuestionSets(ctx context.Context) error {
	for _, qs := range a.cfg.QuestionSets {
		id := QuestionSetID(qs.Name)
		_, err := a.store.GetInterview(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up %q: %w", qs.Name, err)
		}
		iv := &store.Interview{
			ID:        id,
			Role:      qs.Role,
			Level:     qs.Level,
			Type:      string(qs.Type),
			TechStack: qs.TechStack,
			Questions: qs.Questions,
		}
		if err := a.store.CreateInterview(ctx, iv); err != nil {
			return fmt.Errorf("store %q: %w", qs.Name, err)
		}
		slog.Info("question set stored", "name", qs.Name, "interview_id", id, "questions", len(qs.Questions))
	}
	return nil
}

// initProviders wraps each configured primary with its fallback, if any.
func (a *App) initProviders() {
	p, names := a.providers, a.cfg.Providers

	a.llmP = p.LLM
	if p.LLM != nil && p.LLMFallback != nil {
		fb := resilience.NewLLMFallback(p.LLM, names.LLM.Name, resilience.FallbackConfig{})
		fb.AddFallback(names.LLMFallback.Name, p.LLMFallback)
		a.llmP = fb
	}

	a.sttP = p.STT
	if p.STT != nil && p.STTFallback != nil {
		fb := resilience.NewSTTFallback(p.STT, names.STT.Name, resilience.FallbackConfig{})
		fb.AddFallback(names.STTFallback.Name, p.STTFallback)
		a.sttP = fb
	}

	a.ttsP = p.TTS
	if p.TTS != nil && p.TTSFallback != nil {
		fb := resilience.NewTTSFallback(p.TTS, names.TTS.Name, resilience.FallbackConfig{})
		fb.AddFallback(names.TTSFallback.Name, p.TTSFallback)
		a.ttsP = fb
	}
}

// initServer builds the services and the HTTP handler. Endpoints whose
// providers are missing answer 501.
func (a *App) initServer() {
	iv := a.cfg.Interview
	names := a.cfg.Providers
	sim := similarity.New()

	scfg := server.Config{
		Store:          a.store,
		Voice:          types.VoiceProfile{ID: iv.Voice, Provider: names.TTS.Name, SpeedFactor: iv.PlaybackRate},
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}

	var (
		transcriber *gateway.Transcription
		decider     *gateway.Decision
		finalizer   *feedback.Service
	)
	if a.sttP != nil {
		transcriber = gateway.NewTranscription(a.sttP, iv.Language,
			gateway.WithTimeout(iv.Timeouts.Transcription),
			gateway.WithMetrics(a.metrics, names.STT.Name),
		)
		scfg.Transcriber = transcriber
	}
	if a.llmP != nil {
		decider = gateway.NewDecision(decision.New(a.llmP, decision.WithSimilarity(sim)),
			gateway.WithTimeout(iv.Timeouts.Decision),
			gateway.WithMetrics(a.metrics, names.LLM.Name),
		)
		finalizer = feedback.New(a.llmP, a.store)
		scfg.Decider = decider
		scfg.Finalizer = finalizer
		scfg.Generator = questions.New(a.llmP, a.store, questions.WithSimilarity(sim))
	}
	if a.ttsP != nil {
		scfg.TTS = a.ttsP
	}

	if transcriber != nil && decider != nil && finalizer != nil && a.ttsP != nil {
		a.sessions = interview.NewManager(interview.ManagerConfig{
			Interviews:      a.store,
			Transcriber:     transcriber,
			Decider:         decider,
			Finalizer:       finalizer,
			Devices:         a.devices,
			MaxSessions:     int64(iv.MaxSessions),
			MaxQuestions:    iv.MaxQuestions,
			FinalizeTimeout: iv.Timeouts.Finalization,
			Metrics:         a.metrics,
		})
		scfg.Sessions = a.sessions
	} else {
		slog.Warn("interview sessions disabled: llm, stt and tts providers are all required")
	}

	a.health = health.New(
		health.Checker{Name: "store", Check: a.store.Ping},
		health.Checker{Name: "providers", Check: a.checkProviders},
	)
	scfg.Health = a.health

	a.handler = server.New(scfg).Handler()
}

// devices builds the speaker and recorder for one connected client.
func (a *App) devices(player audio.Player, mic audio.Microphone) (interview.Speaker, interview.Recorder) {
	iv := a.cfg.Interview
	sp := playback.NewSpeaker(a.ttsP, player,
		playback.WithVoice(iv.Voice),
		playback.WithRate(iv.PlaybackRate),
		playback.WithSynthesisTimeout(iv.Timeouts.Synthesis),
		playback.WithMetrics(a.metrics, a.cfg.Providers.TTS.Name),
	)
	rec := capture.NewRecorder(mic, capture.WithContentType(iv.ContentType))
	return sp, rec
}

func (a *App) checkProviders(context.Context) error {
	var missing []error
	if a.llmP == nil {
		missing = append(missing, errors.New("llm provider not configured"))
	}
	if a.sttP == nil {
		missing = append(missing, errors.New("stt provider not configured"))
	}
	if a.ttsP == nil {
		missing = append(missing, errors.New("tts provider not configured"))
	}
	return errors.Join(missing...)
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager, or nil when sessions are disabled.
func (a *App) Sessions() *interview.Manager { return a.sessions }

// Store returns the interview and feedback store.
func (a *App) Store() store.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the API (and /metrics on a separate listener when
// server.metrics_addr is set) and blocks until ctx is cancelled or a
// listener fails. When ctx is done, Run drains in-flight requests and
// returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	type listener struct {
		srv *http.Server
		ln  net.Listener
	}
	var lns []listener

	listen := func(addr string, h http.Handler) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		lns = append(lns, listener{srv: srv, ln: ln})
		slog.Info("listening", "addr", ln.Addr().String())
		return nil
	}

	if err := listen(a.cfg.Server.ListenAddr, a.handler); err != nil {
		return err
	}
	if addr := a.cfg.Server.MetricsAddr; addr != "" && a.metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.metricsHandler)
		if err := listen(addr, mux); err != nil {
			_ = lns[0].ln.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lns {
		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil && i == 0 {
				err = l.srv.ServeTLS(l.ln, tls.CertFile, tls.KeyFile)
			} else {
				err = l.srv.Serve(l.ln)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetDraining(true)
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		defer cancel()
		for _, l := range lns {
			if err := l.srv.Shutdown(drainCtx); err != nil {
				slog.Warn("http shutdown", "err", err)
			}
		}
		return nil
	})

	slog.Info("app running", "sessions_enabled", a.sessions != nil)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: serve: %w", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: running sessions are ended
// and finalized first, then the closers run. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if a.sessions != nil {
			if err := a.sessions.Shutdown(ctx); err != nil {
				slog.Warn("session shutdown", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
