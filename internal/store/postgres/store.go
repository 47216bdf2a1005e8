// Package postgres is a PostgreSQL-backed [store.Store] built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/rehearsa/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store holds a single [pgxpool.Pool]. All operations are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate]. maxConns <= 0 keeps the pgx default pool size.
func NewStore(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close implements [store.Store].
func (s *Store) Close() { s.pool.Close() }

// CreateInterview implements [store.InterviewStore].
func (s *Store) CreateInterview(ctx context.Context, iv *store.Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO interviews (id, user_id, role, level, type, techstack, questions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, q,
		iv.ID, iv.UserID, iv.Role, iv.Level, iv.Type,
		nonNil(iv.TechStack), nonNil(iv.Questions), iv.CreatedAt,
	).Scan(&iv.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create interview: %w", err)
	}
	return nil
}

// GetInterview implements [store.InterviewStore].
func (s *Store) GetInterview(ctx context.Context, id string) (*store.Interview, error) {
	const q = `
		SELECT id, user_id, role, level, type, techstack, questions, created_at
		FROM   interviews
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get interview: %w", err)
	}
	iv, err := pgx.CollectExactlyOneRow(rows, scanInterview)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: interview %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get interview: %w", err)
	}
	return &iv, nil
}

// ListInterviews implements [store.InterviewStore].
func (s *Store) ListInterviews(ctx context.Context, userID string, limit int) ([]store.Interview, error) {
	q := `
		SELECT id, user_id, role, level, type, techstack, questions, created_at
		FROM   interviews
		WHERE  user_id = $1
		ORDER  BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list interviews: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanInterview)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list interviews: %w", err)
	}
	return out, nil
}

// SaveFeedback implements [store.FeedbackStore]. The conflict target keeps
// the existing row's id, so a re-scored interview keeps its feedback URL.
func (s *Store) SaveFeedback(ctx context.Context, fb *store.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO feedback (
		    id, interview_id, user_id, total_score, category_scores,
		    strengths, areas_for_improvement, final_assessment, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (interview_id, user_id) DO UPDATE SET
		    total_score           = EXCLUDED.total_score,
		    category_scores       = EXCLUDED.category_scores,
		    strengths             = EXCLUDED.strengths,
		    areas_for_improvement = EXCLUDED.areas_for_improvement,
		    final_assessment      = EXCLUDED.final_assessment,
		    transcript            = EXCLUDED.transcript,
		    created_at            = now()
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q,
		fb.ID, fb.InterviewID, fb.UserID, fb.TotalScore, nonNil(fb.CategoryScores),
		nonNil(fb.Strengths), nonNil(fb.AreasForImprovement), fb.FinalAssessment, nonNil(fb.Transcript),
	).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: save feedback: %w", err)
	}
	return nil
}

// GetFeedback implements [store.FeedbackStore].
func (s *Store) GetFeedback(ctx context.Context, interviewID, userID string) (*store.Feedback, error) {
	const q = feedbackSelect + `WHERE interview_id = $1 AND user_id = $2`
	return s.oneFeedback(ctx, q, interviewID, userID)
}

// GetFeedbackByID implements [store.FeedbackStore].
func (s *Store) GetFeedbackByID(ctx context.Context, id string) (*store.Feedback, error) {
	const q = feedbackSelect + `WHERE id = $1`
	return s.oneFeedback(ctx, q, id)
}

const feedbackSelect = `
	SELECT id, interview_id, user_id, total_score, category_scores,
	       strengths, areas_for_improvement, final_assessment, transcript, created_at
	FROM   feedback
	`

func (s *Store) oneFeedback(ctx context.Context, q string, args ...any) (*store.Feedback, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get feedback: %w", err)
	}
	fb, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (store.Feedback, error) {
		var fb store.Feedback
		err := row.Scan(
			&fb.ID, &fb.InterviewID, &fb.UserID, &fb.TotalScore, &fb.CategoryScores,
			&fb.Strengths, &fb.AreasForImprovement, &fb.FinalAssessment, &fb.Transcript, &fb.CreatedAt,
		)
		return fb, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: feedback: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get feedback: %w", err)
	}
	return &fb, nil
}

func scanInterview(row pgx.CollectableRow) (store.Interview, error) {
	var iv store.Interview
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Level, &iv.Type, &iv.TechStack, &iv.Questions, &iv.CreatedAt)
	return iv, err
}

// nonNil maps a nil slice to an empty one so NOT NULL array and JSONB
// columns receive '{}' / '[]' instead of NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
