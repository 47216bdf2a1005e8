package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id          TEXT        PRIMARY KEY,
    user_id     TEXT        NOT NULL,
    role        TEXT        NOT NULL DEFAULT '',
    level       TEXT        NOT NULL DEFAULT '',
    type        TEXT        NOT NULL DEFAULT '',
    techstack   TEXT[]      NOT NULL DEFAULT '{}',
    questions   TEXT[]      NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interviews_user_created
    ON interviews (user_id, created_at DESC);
`

const ddlFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id                     TEXT        PRIMARY KEY,
    interview_id           TEXT        NOT NULL,
    user_id                TEXT        NOT NULL,
    total_score            INTEGER     NOT NULL,
    category_scores        JSONB       NOT NULL DEFAULT '[]',
    strengths              TEXT[]      NOT NULL DEFAULT '{}',
    areas_for_improvement  TEXT[]      NOT NULL DEFAULT '{}',
    final_assessment       TEXT        NOT NULL DEFAULT '',
    transcript             JSONB       NOT NULL DEFAULT '[]',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (interview_id, user_id)
);
`

// Migrate creates the tables and indexes if they do not exist. It is
// idempotent and safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"interviews", ddlInterviews},
		{"feedback", ddlFeedback},
	} {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", stmt.name, err)
		}
	}
	return nil
}
