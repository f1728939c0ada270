package study

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresSchema creates the quiz result archive table.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS quiz_results (
		id           UUID PRIMARY KEY,
		session_id   TEXT NOT NULL,
		quiz_id      UUID NOT NULL,
		topic        TEXT NOT NULL,
		difficulty   TEXT NOT NULL,
		score        INTEGER NOT NULL,
		total        INTEGER NOT NULL,
		percentage   DOUBLE PRECISION NOT NULL,
		correct      BOOLEAN[] NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS quiz_results_session_idx ON quiz_results (session_id, submitted_at)`,
}

// PostgresRecorder archives quiz results in PostgreSQL.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder creates a PostgreSQL-backed result recorder. The
// schema in PostgresSchema must already be applied.
func NewPostgresRecorder(pool *pgxpool.Pool) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) RecordResult(ctx context.Context, sessionID string, res QuizResult) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_results
		   (id, session_id, quiz_id, topic, difficulty, score, total, percentage, correct, submitted_at)
		 VALUES ($1::uuid, $2, $3::uuid, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		res.ID,
		sessionID,
		res.QuizID,
		res.Topic,
		string(res.Difficulty),
		res.Score,
		res.Total,
		res.Percentage,
		res.Correct,
		res.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

// Results returns the archived results of a session, oldest first.
func (r *PostgresRecorder) Results(ctx context.Context, sessionID string) ([]QuizResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, quiz_id::text, topic, difficulty, score, total, percentage, correct, submitted_at
		 FROM quiz_results
		 WHERE session_id = $1
		 ORDER BY submitted_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []QuizResult
	for rows.Next() {
		var (
			res        QuizResult
			difficulty string
		)
		if err := rows.Scan(
			&res.ID,
			&res.QuizID,
			&res.Topic,
			&difficulty,
			&res.Score,
			&res.Total,
			&res.Percentage,
			&res.Correct,
			&res.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		res.Difficulty = Difficulty(difficulty)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz results: %w", err)
	}
	return out, nil
}
