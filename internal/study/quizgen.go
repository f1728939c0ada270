package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/prompts"
)

const (
	defaultQuestionConcurrency = 4
	defaultQuestionAttempts    = 2
	defaultMaxQuizQuestions    = 12
	defaultGenerateTimeout     = 30 * time.Second
)

var tracer = otel.Tracer("pai-study/study")

// Generator produces free text for a prompt. *ai.Router satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// QuizRequest describes the quiz the user asked for.
type QuizRequest struct {
	Difficulty Difficulty `json:"difficulty"`
	Count      int        `json:"count"`
	Strategy   Strategy   `json:"strategy"`
}

// normalize fills in defaults and validates the request.
func (r QuizRequest) normalize() (QuizRequest, error) {
	if r.Difficulty == "" {
		r.Difficulty = DifficultyMedium
	}
	if r.Strategy == "" {
		r.Strategy = StrategyRandom
	}
	if !r.Difficulty.valid() {
		return r, ErrInvalidDifficulty
	}
	if !r.Strategy.valid() {
		return r, ErrInvalidStrategy
	}
	if r.Count < 1 {
		return r, ErrInvalidCount
	}
	return r, nil
}

// QuizEngineConfig holds dependencies and limits for a QuizEngine.
type QuizEngineConfig struct {
	Generator    Generator
	Prompts      *prompts.Set
	Concurrency  int           // parallel question generations (default 4)
	Attempts     int           // attempts per topic before it is replaced (default 2)
	MaxQuestions int           // upper bound on the requested count (default 12)
	Timeout      time.Duration // per generation call (default 30s)
	Rand         *rand.Rand
	Now          func() time.Time
}

// QuizEngine builds quizzes from checklist items.
type QuizEngine struct {
	gen          Generator
	prompts      *prompts.Set
	concurrency  int
	attempts     int
	maxQuestions int
	timeout      time.Duration
	now          func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewQuizEngine creates a quiz engine.
func NewQuizEngine(cfg QuizEngineConfig) *QuizEngine {
	e := &QuizEngine{
		gen:          cfg.Generator,
		prompts:      cfg.Prompts,
		concurrency:  cfg.Concurrency,
		attempts:     cfg.Attempts,
		maxQuestions: cfg.MaxQuestions,
		timeout:      cfg.Timeout,
		now:          cfg.Now,
		rng:          cfg.Rand,
	}
	if e.prompts == nil {
		e.prompts = prompts.Default()
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultQuestionConcurrency
	}
	if e.attempts <= 0 {
		e.attempts = defaultQuestionAttempts
	}
	if e.maxQuestions <= 0 {
		e.maxQuestions = defaultMaxQuizQuestions
	}
	if e.timeout <= 0 {
		e.timeout = defaultGenerateTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// Generate builds a quiz about topic from the pool selected by req.Strategy.
// The count is clamped to the pool size and to the engine maximum. Topics
// are sampled without replacement; a topic whose output never parses is
// replaced by the next unsampled one. A generator failure aborts the whole
// quiz with a *GenerationError.
func (e *QuizEngine) Generate(ctx context.Context, topic string, req QuizRequest, pool []ChecklistItem) (*Quiz, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	candidates := e.selectTopics(pool, req.Strategy)
	if len(candidates) == 0 {
		return nil, ErrEmptyPool
	}
	want := min(req.Count, e.maxQuestions, len(candidates))

	ctx, span := tracer.Start(ctx, "quiz.generate", trace.WithAttributes(
		attribute.String("difficulty", string(req.Difficulty)),
		attribute.String("strategy", string(req.Strategy)),
		attribute.Int("count", want),
		attribute.Int("pool", len(candidates)),
	))
	defer span.End()
	ctx = ai.WithTask(ctx, ai.TaskQuestion)

	var questions []QuizQuestion
	next := 0
	for len(questions) < want && next < len(candidates) {
		end := min(next+want-len(questions), len(candidates))
		batch, err := e.generateBatch(ctx, topic, req.Difficulty, candidates[next:end])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			return nil, &GenerationError{Op: "generate quiz", Err: err}
		}
		questions = append(questions, batch...)
		next = end
	}

	if len(questions) == 0 {
		err := errors.New("no usable questions were produced")
		span.SetStatus(codes.Error, err.Error())
		return nil, &GenerationError{Op: "generate quiz", Err: err}
	}
	if len(questions) < want {
		slog.Warn("quiz is shorter than requested",
			"topic", topic,
			"requested", req.Count,
			"generated", len(questions),
		)
	}

	return newQuiz(topic, req, questions, e.now()), nil
}

// Retake builds a fresh quiz with the size and difficulty of prev, sampled
// at random from the whole checklist.
func (e *QuizEngine) Retake(ctx context.Context, prev *Quiz, checklist []ChecklistItem) (*Quiz, error) {
	if prev == nil {
		return nil, ErrNoQuiz
	}
	return e.Generate(ctx, prev.Topic, QuizRequest{
		Difficulty: prev.Difficulty,
		Count:      len(prev.Questions),
		Strategy:   StrategyRandom,
	}, checklist)
}

// selectTopics filters the pool by strategy and orders it: shuffled for
// random and incomplete, checklist order for all.
func (e *QuizEngine) selectTopics(pool []ChecklistItem, strategy Strategy) []string {
	seen := make(map[string]bool, len(pool))
	var texts []string
	for _, it := range pool {
		if strategy == StrategyIncomplete && it.Completed {
			continue
		}
		if seen[it.Text] {
			continue
		}
		seen[it.Text] = true
		texts = append(texts, it.Text)
	}

	if strategy != StrategyAll {
		e.mu.Lock()
		e.rng.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })
		e.mu.Unlock()
	}
	return texts
}

// generateBatch generates one question per item in parallel. Items whose
// output never parses are left out; order follows items.
func (e *QuizEngine) generateBatch(ctx context.Context, topic string, difficulty Difficulty, items []string) ([]QuizQuestion, error) {
	results := make([]*QuizQuestion, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, item := range items {
		g.Go(func() error {
			q, err := e.generateQuestion(ctx, topic, difficulty, item)
			if err != nil {
				return err
			}
			results[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []QuizQuestion
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

// generateQuestion returns nil without error when every attempt produced
// unparseable output.
func (e *QuizEngine) generateQuestion(ctx context.Context, topic string, difficulty Difficulty, item string) (*QuizQuestion, error) {
	prompt, err := e.prompts.Question(topic, item, string(difficulty))
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= e.attempts; attempt++ {
		raw, err := e.generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("question for %q: %w", item, err)
		}

		q, err := ParseQuizQuestion(raw, item)
		if err == nil {
			return &q, nil
		}
		slog.Warn("unparseable quiz question",
			"item", item,
			"attempt", attempt,
			"error", err,
		)
		slog.Debug("raw question output", "item", item, "raw", raw)
	}

	slog.Warn("dropping quiz topic after repeated parse failures", "item", item, "attempts", e.attempts)
	return nil, nil
}

func (e *QuizEngine) generate(ctx context.Context, prompt prompts.Prompt) (string, error) {
	if e.gen == nil {
		return "", errors.New("no text generator configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.gen.Generate(ctx, prompt.Text, prompt.MaxTokens)
}
