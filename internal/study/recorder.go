package study

import (
	"context"
	"fmt"
	"sync"
)

// ResultRecorder archives submitted quiz results outside the session. It is
// called after the in-session history has been updated; its failures never
// undo a submission.
type ResultRecorder interface {
	RecordResult(ctx context.Context, sessionID string, result QuizResult) error
}

// NopRecorder discards results.
type NopRecorder struct{}

func (NopRecorder) RecordResult(context.Context, string, QuizResult) error {
	return nil
}

// MemoryRecorder keeps results in memory for tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	results map[string][]QuizResult
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{results: make(map[string][]QuizResult)}
}

func (r *MemoryRecorder) RecordResult(_ context.Context, sessionID string, result QuizResult) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	r.mu.Lock()
	r.results[sessionID] = append(r.results[sessionID], result.clone())
	r.mu.Unlock()
	return nil
}

// Results returns a copy of the results recorded for a session.
func (r *MemoryRecorder) Results(sessionID string) []QuizResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QuizResult, len(r.results[sessionID]))
	copy(out, r.results[sessionID])
	return out
}
