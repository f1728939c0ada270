package study

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS quiz_results (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	quiz_id      TEXT NOT NULL,
	topic        TEXT NOT NULL,
	difficulty   TEXT NOT NULL,
	score        INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	percentage   REAL NOT NULL,
	correct      TEXT NOT NULL,
	submitted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_results_session_idx ON quiz_results (session_id, submitted_at);`

// Fixed width so that submitted_at sorts chronologically as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRecorder archives quiz results in a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLiteRecorder opens (creating if needed) the database at path and
// applies the schema.
func OpenSQLiteRecorder(ctx context.Context, path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// go-sqlite3 serialises writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) RecordResult(ctx context.Context, sessionID string, res QuizResult) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	correct, err := json.Marshal(res.Correct)
	if err != nil {
		return fmt.Errorf("encode correctness: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quiz_results
		   (id, session_id, quiz_id, topic, difficulty, score, total, percentage, correct, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		sessionID,
		res.QuizID,
		res.Topic,
		string(res.Difficulty),
		res.Score,
		res.Total,
		res.Percentage,
		string(correct),
		res.SubmittedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

// Results returns the archived results of a session, oldest first.
func (r *SQLiteRecorder) Results(ctx context.Context, sessionID string) ([]QuizResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, quiz_id, topic, difficulty, score, total, percentage, correct, submitted_at
		 FROM quiz_results
		 WHERE session_id = ?
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
			res         QuizResult
			difficulty  string
			correct     string
			submittedAt string
		)
		if err := rows.Scan(&res.ID, &res.QuizID, &res.Topic, &difficulty, &res.Score, &res.Total,
			&res.Percentage, &correct, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		if err := json.Unmarshal([]byte(correct), &res.Correct); err != nil {
			return nil, fmt.Errorf("decode correctness: %w", err)
		}
		if res.SubmittedAt, err = time.Parse(sqliteTimeLayout, submittedAt); err != nil {
			return nil, fmt.Errorf("parse submitted_at: %w", err)
		}
		res.Difficulty = Difficulty(difficulty)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz results: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
