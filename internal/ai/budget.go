package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExceeded is returned when a key has used up its token budget.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// BudgetChecker checks and records token usage against budgets.
type BudgetChecker interface {
	// Check returns true if key has budget remaining.
	Check(key string) (bool, error)
	// Record records token usage for key.
	Record(key string, tokens int) error
	// Usage returns current usage and limit for key.
	Usage(key string) (used int64, budget int64, err error)
}

// InMemoryBudget is an in-memory per-key token budget. Keys are usually
// study session IDs.
type InMemoryBudget struct {
	mu       sync.RWMutex
	fallback int64            // limit for keys without an explicit budget, 0 = unlimited
	budgets  map[string]int64 // key -> budget limit
	usage    map[string]int64 // key -> tokens used
}

// NewInMemoryBudget creates a budget tracker. defaultLimit applies to every
// key that has no explicit budget; zero means unlimited.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		fallback: defaultLimit,
		budgets:  make(map[string]int64),
		usage:    make(map[string]int64),
	}
}

// SetBudget sets the token budget for a single key.
func (b *InMemoryBudget) SetBudget(key string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[key] = tokens
}

func (b *InMemoryBudget) limit(key string) int64 {
	if v, ok := b.budgets[key]; ok {
		return v
	}
	return b.fallback
}

func (b *InMemoryBudget) Check(key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limit(key)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[key] < limit, nil
}

func (b *InMemoryBudget) Record(key string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[key] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(key string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[key], b.limit(key), nil
}

// Reset forgets usage for key, e.g. when a session ends.
func (b *InMemoryBudget) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.usage, key)
	delete(b.budgets, key)
}

type budgetKeyCtx struct{}

// WithBudgetKey attaches the key that generation calls made with ctx are
// charged against.
func WithBudgetKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, budgetKeyCtx{}, key)
}

// BudgetKeyFrom returns the budget key carried by ctx, if any.
func BudgetKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(budgetKeyCtx{}).(string)
	return key, ok && key != ""
}
