// Package server exposes rehearsa over HTTP: the speech, decision, feedback
// and question-generation endpoints, the interview session API and the
// websocket a browser uses to take part in a session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/feedback"
	"github.com/MrWong99/rehearsa/internal/health"
	"github.com/MrWong99/rehearsa/internal/interview"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/questions"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/pkg/provider/tts"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// UserHeader carries the caller's user id. Websocket clients, which cannot
// set headers, pass it as the userId query parameter instead.
const UserHeader = "X-User-ID"

const (
	defaultMaxAudioBytes = 25 << 20
	maxJSONBytes         = 1 << 20
)

// Transcriber transcribes uploaded audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Decider answers next-question requests.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (decision.Decision, error)
}

// Finalizer scores transcripts.
type Finalizer interface {
	Finalize(ctx context.Context, req feedback.Request) (string, error)
}

// Generator prepares question sets.
type Generator interface {
	Generate(ctx context.Context, req questions.Request) (*store.Interview, error)
}

// Config holds the dependencies of a [Server]. Nil optional fields disable
// the endpoints that need them.
type Config struct {
	Sessions    *interview.Manager
	Store       store.Store
	TTS         tts.Provider
	Voice       types.VoiceProfile
	Transcriber Transcriber
	Decider     Decider
	Finalizer   Finalizer
	Generator   Generator

	Health         *health.Handler
	Metrics        *observe.Metrics
	MetricsHandler http.Handler

	// AllowedOrigins are host patterns accepted for cross-origin websockets.
	AllowedOrigins []string

	// MaxAudioBytes caps uploaded audio. Default 25 MiB.
	MaxAudioBytes int64

	// DefaultRemaining is used when a next-question request has no
	// remainingCount.
	DefaultRemaining int

	Logger *slog.Logger
}

// Server routes HTTP requests. Create it with [New].
type Server struct {
	cfg Config
	log *slog.Logger
}

// New returns a Server.
func New(cfg Config) *Server {
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = defaultMaxAudioBytes
	}
	if cfg.DefaultRemaining <= 0 {
		cfg.DefaultRemaining = questions.MaxAmount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, log: cfg.Logger}
}

// Handler returns the routed handler wrapped in the observability middleware.
//
//	POST /api/text-to-speech         synthesize {text, voice?} to audio
//	POST /api/speech-to-text         transcribe the raw request body
//	POST /api/next-question          decide the next interviewer step
//	POST /api/create-feedback        score and store a transcript
//	POST /api/generate-interview     generate and store a question set
//	POST /v1/sessions                create an interview session
//	GET  /v1/sessions/{id}           session status
//	POST /v1/sessions/{id}/stop-answer
//	POST /v1/sessions/{id}/end
//	GET  /v1/sessions/{id}/ws        session websocket
//	GET  /v1/interviews              the caller's interviews
//	GET  /v1/interviews/{id}
//	GET  /v1/interviews/{id}/feedback
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/text-to-speech", s.handleTextToSpeech)
	mux.HandleFunc("POST /api/speech-to-text", s.handleSpeechToText)
	mux.HandleFunc("POST /api/next-question", s.handleNextQuestion)
	mux.HandleFunc("POST /api/create-feedback", s.handleCreateFeedback)
	mux.HandleFunc("POST /api/generate-interview", s.handleGenerateInterview)
	mux.HandleFunc("GET /api/generate-interview", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": "ok"})
	})

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/stop-answer", s.handleStopAnswer)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleSessionSocket)

	mux.HandleFunc("GET /v1/interviews", s.handleListInterviews)
	mux.HandleFunc("GET /v1/interviews/{id}", s.handleGetInterview)
	mux.HandleFunc("GET /v1/interviews/{id}/feedback", s.handleGetFeedback)

	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	if s.cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.cfg.MetricsHandler)
	}

	if s.cfg.Metrics == nil {
		return mux
	}
	return observe.Middleware(s.cfg.Metrics)(mux)
}

// apiError is the failure body of every endpoint.
type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// requireUser returns the caller's user id or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(UserHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return "", false
	}
	return id, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interview.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interview.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, interview.ErrAlreadyRunning), errors.Is(err, interview.ErrAlreadyAttached):
		return http.StatusConflict
	case interview.IsClientError(err),
		errors.Is(err, feedback.ErrMissingFields),
		errors.Is(err, questions.ErrMissingFields),
		errors.Is(err, decision.ErrNoMessages):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
