// Package ai provides a provider-agnostic text generation gateway.
package ai

import "context"

// TaskType labels a generation request for logging and budgeting.
type TaskType int

const (
	TaskGeneral TaskType = iota
	TaskChecklist
	TaskQuestion
)

func (t TaskType) String() string {
	switch t {
	case TaskGeneral:
		return "general"
	case TaskChecklist:
		return "checklist"
	case TaskQuestion:
		return "question"
	default:
		return "unknown"
	}
}

type taskCtx struct{}

// WithTask labels generation calls made with ctx.
func WithTask(ctx context.Context, task TaskType) context.Context {
	return context.WithValue(ctx, taskCtx{}, task)
}

// TaskFrom returns the task label carried by ctx, TaskGeneral if none.
func TaskFrom(ctx context.Context) TaskType {
	if t, ok := ctx.Value(taskCtx{}).(TaskType); ok {
		return t
	}
	return TaskGeneral
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}
