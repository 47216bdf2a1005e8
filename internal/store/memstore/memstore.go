// Package memstore is an in-memory [store.Store]. Data is lost on restart.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/rehearsa/internal/store"
)

var _ store.Store = (*Store)(nil)

type feedbackKey struct{ interviewID, userID string }

// Store keeps interviews and feedback in maps guarded by a mutex. Records are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu         sync.RWMutex
	interviews map[string]store.Interview
	feedback   map[string]store.Feedback
	byPair     map[feedbackKey]string
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		interviews: make(map[string]store.Interview),
		feedback:   make(map[string]store.Feedback),
		byPair:     make(map[feedbackKey]string),
		now:        time.Now,
	}
}

// CreateInterview implements [store.InterviewStore].
func (s *Store) CreateInterview(_ context.Context, iv *store.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if _, exists := s.interviews[iv.ID]; exists {
		return fmt.Errorf("memstore: interview %q already exists", iv.ID)
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = s.now().UTC()
	}
	s.interviews[iv.ID] = cloneInterview(*iv)
	return nil
}

// GetInterview implements [store.InterviewStore].
func (s *Store) GetInterview(_ context.Context, id string) (*store.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, fmt.Errorf("memstore: interview %q: %w", id, store.ErrNotFound)
	}
	out := cloneInterview(iv)
	return &out, nil
}

// ListInterviews implements [store.InterviewStore].
func (s *Store) ListInterviews(_ context.Context, userID string, limit int) ([]store.Interview, error) {
	s.mu.RLock()
	var out []store.Interview
	for _, iv := range s.interviews {
		if iv.UserID == userID {
			out = append(out, cloneInterview(iv))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.Interview) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveFeedback implements [store.FeedbackStore].
func (s *Store) SaveFeedback(_ context.Context, fb *store.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feedbackKey{fb.InterviewID, fb.UserID}
	if id, ok := s.byPair[key]; ok {
		fb.ID = id
	} else {
		if fb.ID == "" {
			fb.ID = uuid.NewString()
		}
		s.byPair[key] = fb.ID
	}
	fb.CreatedAt = s.now().UTC()
	s.feedback[fb.ID] = cloneFeedback(*fb)
	return nil
}

// GetFeedback implements [store.FeedbackStore].
func (s *Store) GetFeedback(ctx context.Context, interviewID, userID string) (*store.Feedback, error) {
	s.mu.RLock()
	id, ok := s.byPair[feedbackKey{interviewID, userID}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memstore: feedback for interview %q: %w", interviewID, store.ErrNotFound)
	}
	return s.GetFeedbackByID(ctx, id)
}

// GetFeedbackByID implements [store.FeedbackStore].
func (s *Store) GetFeedbackByID(_ context.Context, id string) (*store.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fb, ok := s.feedback[id]
	if !ok {
		return nil, fmt.Errorf("memstore: feedback %q: %w", id, store.ErrNotFound)
	}
	out := cloneFeedback(fb)
	return &out, nil
}

// Ping implements [store.Store]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store]. It is a no-op.
func (s *Store) Close() {}

func cloneInterview(iv store.Interview) store.Interview {
	iv.TechStack = slices.Clone(iv.TechStack)
	iv.Questions = slices.Clone(iv.Questions)
	return iv
}

func cloneFeedback(fb store.Feedback) store.Feedback {
	fb.CategoryScores = slices.Clone(fb.CategoryScores)
	fb.Strengths = slices.Clone(fb.Strengths)
	fb.AreasForImprovement = slices.Clone(fb.AreasForImprovement)
	fb.Transcript = slices.Clone(fb.Transcript)
	return fb
}
