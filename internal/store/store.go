// Package store defines persistence for interview records and their scored
// feedback.
//
// Two backends exist: [memstore] keeps everything in process memory (used
// when no database is configured and in tests) and [postgres] persists to
// PostgreSQL through a pgx connection pool.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/rehearsa/pkg/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Interview is a stored, scripted question set owned by a user.
type Interview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Level     string    `json:"level"`
	Type      string    `json:"type"`
	TechStack []string  `json:"techstack"`
	Questions []string  `json:"questions"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryScore is the score for one assessment category.
type CategoryScore struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// Feedback is the scored assessment of one finished interview.
// There is at most one Feedback per (InterviewID, UserID).
type Feedback struct {
	ID                  string          `json:"id"`
	InterviewID         string          `json:"interviewId"`
	UserID              string          `json:"userId"`
	TotalScore          int             `json:"totalScore"`
	CategoryScores      []CategoryScore `json:"categoryScores"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areasForImprovement"`
	FinalAssessment     string          `json:"finalAssessment"`
	Transcript          []types.Message `json:"transcript"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// InterviewStore persists interviews.
type InterviewStore interface {
	// CreateInterview stores iv. Empty ID and zero CreatedAt are filled in.
	CreateInterview(ctx context.Context, iv *Interview) error

	// GetInterview returns the interview with id or [ErrNotFound].
	GetInterview(ctx context.Context, id string) (*Interview, error)

	// ListInterviews returns the user's interviews, newest first. limit <= 0
	// means no limit.
	ListInterviews(ctx context.Context, userID string, limit int) ([]Interview, error)
}

// FeedbackStore persists feedback.
type FeedbackStore interface {
	// SaveFeedback upserts fb keyed by (InterviewID, UserID). When feedback
	// already exists for that pair it is overwritten and keeps its ID; fb.ID
	// and fb.CreatedAt are updated to the stored values.
	SaveFeedback(ctx context.Context, fb *Feedback) error

	// GetFeedback returns the feedback for (interviewID, userID) or [ErrNotFound].
	GetFeedback(ctx context.Context, interviewID, userID string) (*Feedback, error)

	// GetFeedbackByID returns the feedback with id or [ErrNotFound].
	GetFeedbackByID(ctx context.Context, id string) (*Feedback, error)
}

// Store combines both record kinds with lifecycle methods.
type Store interface {
	InterviewStore
	FeedbackStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}
