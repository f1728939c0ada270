package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrNoProviders is returned when the router has nothing registered.
var ErrNoProviders = errors.New("no AI providers registered")

// Router tries registered providers in order until one succeeds.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	budget    BudgetChecker
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the end of the fallback chain.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		r.fallback = append(r.fallback, name)
	}
	r.providers[name] = provider
}

// SetBudget enables token budgeting for requests whose context carries a
// budget key (see WithBudgetKey).
func (r *Router) SetBudget(b BudgetChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = b
}

// Complete routes a request to the first provider that answers.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return CompletionResponse{}, ErrNoProviders
	}

	key, charged := BudgetKeyFrom(ctx)
	charged = charged && r.budget != nil
	if charged {
		ok, err := r.budget.Check(key)
		if err != nil {
			return CompletionResponse{}, fmt.Errorf("check budget: %w", err)
		}
		if !ok {
			return CompletionResponse{}, ErrBudgetExceeded
		}
	}

	var errs []error
	for _, name := range r.fallback {
		provider := r.providers[name]

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		if charged {
			if err := r.budget.Record(key, resp.TotalTokens()); err != nil {
				slog.Warn("failed to record token usage", "key", key, "error", err)
			}
		}
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// Generate sends a single user prompt and returns the trimmed reply text.
// The task label is taken from ctx (see WithTask). An empty reply is
// reported as an error.
func (r *Router) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	task := TaskFrom(ctx)
	resp, err := r.Complete(ctx, CompletionRequest{
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
		Task:      task,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion for %s task", task)
	}
	return text, nil
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// HealthCheck succeeds if any registered provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return ErrNoProviders
	}
	var errs []error
	for _, name := range r.fallback {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
