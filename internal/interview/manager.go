package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/pkg/audio"
)

// DeviceFactory builds the per-session audio collaborators for a connected
// client.
type DeviceFactory func(player audio.Player, mic audio.Microphone) (Speaker, Recorder)

// ManagerConfig holds the shared collaborators and limits of a [Manager].
type ManagerConfig struct {
	Interviews  store.InterviewStore
	Transcriber Transcriber
	Decider     Decider
	Finalizer   Finalizer
	Devices     DeviceFactory

	// MaxSessions caps concurrently live sessions. Default 64.
	MaxSessions int64

	// MaxQuestions caps inline question lists. Default 50.
	MaxQuestions int

	// AttachTimeout discards sessions whose client never connects. Default 5m.
	AttachTimeout time.Duration

	// Retention keeps terminated sessions queryable. Default 10m.
	Retention time.Duration

	AudibleTimeout  time.Duration
	FinalizeTimeout time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// StartRequest creates a session either from a stored interview or from an
// inline question list.
type StartRequest struct {
	InterviewID string   `json:"interviewId,omitempty"`
	UserID      string   `json:"userId"`
	Questions   []string `json:"questions,omitempty"`
}

type entry struct {
	session *Session
	running bool
	timer   *time.Timer
}

// Manager hosts independent sessions. All methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig
	sem *semaphore.Weighted
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager returns a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 50
	}
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxSessions),
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// Create resolves the question list and registers an idle session. The
// session starts once a client attaches.
//
// With an InterviewID the stored interview supplies the questions. It must
// belong to the requesting user or be a shared question set (no owner);
// anything else is reported as [store.ErrNotFound]. Without
// one the inline Questions are stored as a new interview first, so the
// resulting feedback has an interview to belong to.
func (m *Manager) Create(ctx context.Context, req StartRequest) (*Session, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ErrMissingUser
	}
	if !m.sem.TryAcquire(1) {
		return nil, ErrTooManySessions
	}
	iv, err := m.resolve(ctx, req)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	s, err := NewSession(Config{
		ID:              uuid.NewString(),
		InterviewID:     iv.ID,
		UserID:          req.UserID,
		Questions:       iv.Questions,
		AudibleTimeout:  m.cfg.AudibleTimeout,
		FinalizeTimeout: m.cfg.FinalizeTimeout,
	}, Deps{
		Transcriber: m.cfg.Transcriber,
		Decider:     m.cfg.Decider,
		Finalizer:   m.cfg.Finalizer,
		Metrics:     m.cfg.Metrics,
		Logger:      m.log,
	})
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	// The entry is registered before the expiry timer can fire.
	e := &entry{session: s}
	m.mu.Lock()
	m.sessions[s.ID()] = e
	e.timer = time.AfterFunc(m.cfg.AttachTimeout, func() { m.expire(s.ID()) })
	m.addActive(1)
	m.mu.Unlock()

	m.log.Info("session created", "session_id", s.ID(), "interview_id", iv.ID, "questions", len(iv.Questions))
	return s, nil
}

func (m *Manager) resolve(ctx context.Context, req StartRequest) (*store.Interview, error) {
	if req.InterviewID != "" {
		iv, err := m.cfg.Interviews.GetInterview(ctx, req.InterviewID)
		if err != nil {
			return nil, fmt.Errorf("interview: load %q: %w", req.InterviewID, err)
		}
		if iv.UserID != "" && iv.UserID != req.UserID {
			return nil, fmt.Errorf("interview: load %q: %w", req.InterviewID, store.ErrNotFound)
		}
		if len(iv.Questions) == 0 {
			return nil, ErrNoQuestions
		}
		return iv, nil
	}

	var qs []string
	for _, q := range req.Questions {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	if len(qs) > m.cfg.MaxQuestions {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyQuestions, len(qs), m.cfg.MaxQuestions)
	}
	iv := &store.Interview{UserID: req.UserID, Type: "custom", Questions: qs}
	if err := m.cfg.Interviews.CreateInterview(ctx, iv); err != nil {
		return nil, fmt.Errorf("interview: store questions: %w", err)
	}
	return iv, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// Attach connects a client's audio devices to session id and starts it.
func (m *Manager) Attach(id string, player audio.Player, mic audio.Microphone) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if e.running {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	sp, rec := m.cfg.Devices(player, mic)
	if err := e.session.Attach(sp, rec); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.startLocked(e)
	m.mu.Unlock()
	return e.session, nil
}

// StopAnswer forwards to [Session.StopAnswer].
func (m *Manager) StopAnswer(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.StopAnswer()
	return nil
}

// End ends session id. A session whose client never connected is finalized
// with its empty transcript.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	e.session.End()
	if !e.running {
		m.startLocked(e)
	}
	return nil
}

// Active returns the number of sessions that have not terminated.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sessions {
		select {
		case <-e.session.Done():
		default:
			n++
		}
	}
	return n
}

// Shutdown ends every running session and waits until all of them
// terminated or ctx is done. Sessions without a client are discarded.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	var pending []string
	for id, e := range m.sessions {
		if e.running {
			e.session.End()
		} else {
			pending = append(pending, id)
		}
	}
	m.mu.Unlock()
	for _, id := range pending {
		m.expire(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return fmt.Errorf("interview: shutdown: %w", ctx.Err())
	}
}

// startLocked runs e's session on its own goroutine. m.mu must be held.
func (m *Manager) startLocked(e *entry) {
	e.running = true
	e.timer.Stop()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s := e.session
		out, err := s.Run(m.ctx)
		if err != nil {
			m.log.Error("session run", "session_id", s.ID(), "err", err)
		} else if out.Err != nil {
			m.log.Warn("session ended with error", "session_id", s.ID(), "err", out.Err)
		}
		m.sem.Release(1)
		m.addActive(-1)
		time.AfterFunc(m.cfg.Retention, func() { m.remove(s.ID()) })
	}()
}

// expire drops a session whose client never attached.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.running {
		m.mu.Unlock()
		return
	}
	e.timer.Stop()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.sem.Release(1)
	m.addActive(-1)
	m.log.Info("session expired before a client attached", "session_id", id)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) addActive(n int64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(context.Background(), n)
	}
}

// IsClientError reports whether err is caused by the request rather than the
// server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoQuestions) ||
		errors.Is(err, ErrMissingUser) ||
		errors.Is(err, ErrTooManyQuestions) ||
		errors.Is(err, store.ErrNotFound)
}
