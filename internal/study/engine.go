// Package study implements the study companion core: checklist generation
// and tracking, video resource links, quizzes and score history, all driven
// through a per-session orchestrator.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-study/internal/ai"
	"github.com/p-n-ai/pai-study/internal/prompts"
	"github.com/p-n-ai/pai-study/internal/video"
)

const (
	defaultChecklistMin    = 1
	defaultChecklistMax    = 12
	defaultChecklistTarget = 10
)

// Progress stages reported while a checklist is generated.
const (
	StageGenerating = "generating"
	StageResolving  = "resolving"
	StageDone       = "done"
)

// Progress is one checklist generation progress report. Fraction is in
// [0,1] within the stage.
type Progress struct {
	Stage    string  `json:"stage"`
	Fraction float64 `json:"fraction"`
}

// ProgressFunc receives progress reports. Calls are serial.
type ProgressFunc func(Progress)

// EngineConfig holds dependencies for the study engine.
type EngineConfig struct {
	Generator Generator
	Searcher  video.Searcher
	Store     Store          // default in-memory
	Recorder  ResultRecorder // default NopRecorder
	Prompts   *prompts.Set   // default prompts.Default()

	ChecklistMin    int // fewest usable items accepted (default 1)
	ChecklistMax    int // items kept from the generator output (default 12)
	ChecklistTarget int // items asked for in the prompt (default 10)

	QuestionConcurrency int
	QuestionAttempts    int
	MaxQuizQuestions    int

	LookupConcurrency int
	LookupTimeout     time.Duration
	GenerateTimeout   time.Duration

	Rand *rand.Rand
	Now  func() time.Time
}

// Engine is the session orchestrator. Actions on one session are
// serialized; different sessions proceed independently. Every action loads
// a snapshot, mutates it and saves it back, so a failed action leaves the
// stored session unchanged.
type Engine struct {
	gen      Generator
	store    Store
	recorder ResultRecorder
	prompts  *prompts.Set
	quizzes  *QuizEngine
	resolver *Resolver

	checklistMin    int
	checklistMax    int
	checklistTarget int
	timeout         time.Duration
	now             func() time.Time

	locks sessionLocks
}

// NewEngine creates a new study engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	set := cfg.Prompts
	if set == nil {
		set = prompts.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.GenerateTimeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}

	minItems := cfg.ChecklistMin
	if minItems <= 0 {
		minItems = defaultChecklistMin
	}
	maxItems := cfg.ChecklistMax
	if maxItems <= 0 {
		maxItems = defaultChecklistMax
	}
	if minItems > maxItems {
		minItems = maxItems
	}
	target := cfg.ChecklistTarget
	if target <= 0 {
		target = defaultChecklistTarget
	}
	target = max(minItems, min(target, maxItems))

	return &Engine{
		gen:      cfg.Generator,
		store:    store,
		recorder: recorder,
		prompts:  set,
		quizzes: NewQuizEngine(QuizEngineConfig{
			Generator:    cfg.Generator,
			Prompts:      set,
			Concurrency:  cfg.QuestionConcurrency,
			Attempts:     cfg.QuestionAttempts,
			MaxQuestions: cfg.MaxQuizQuestions,
			Timeout:      timeout,
			Rand:         cfg.Rand,
			Now:          now,
		}),
		resolver:        NewResolver(cfg.Searcher, cfg.LookupConcurrency, cfg.LookupTimeout),
		checklistMin:    minItems,
		checklistMax:    maxItems,
		checklistTarget: target,
		timeout:         timeout,
		now:             now,
		locks:           sessionLocks{m: make(map[string]*sessionLock)},
	}
}

// CreateSession starts a new empty session with a generated id.
func (e *Engine) CreateSession(ctx context.Context) (SessionView, error) {
	sess := NewSession("", e.now())
	if err := e.store.Save(ctx, sess); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID)
	return sess.View(), nil
}

// Ensure returns the session with the given id, creating it if missing.
// Front ends with their own identity (a chat id) use it.
func (e *Engine) Ensure(ctx context.Context, id string) (SessionView, error) {
	if id == "" {
		return SessionView{}, fmt.Errorf("%w: empty id", ErrSessionNotFound)
	}
	unlock := e.locks.lock(id)
	defer unlock()

	sess, err := e.store.Get(ctx, id)
	if err == nil {
		return sess.View(), nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return SessionView{}, err
	}
	sess = NewSession(id, e.now())
	if err := e.store.Save(ctx, sess); err != nil {
		return SessionView{}, fmt.Errorf("save session: %w", err)
	}
	slog.Info("session created", "session_id", id)
	return sess.View(), nil
}

// EndSession discards all state of a session.
func (e *Engine) EndSession(ctx context.Context, id string) error {
	unlock := e.locks.lock(id)
	defer unlock()

	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("session ended", "session_id", id)
	return nil
}

// View returns the current presentation snapshot.
func (e *Engine) View(ctx context.Context, id string) (SessionView, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Review returns the graded questions of the submitted quiz.
func (e *Engine) Review(ctx context.Context, id string) ([]ReviewItem, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Review()
}

// History returns the score history, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]QuizResult, error) {
	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// SetTopic sets the study topic. Changing it clears the checklist, its links
// and the active quiz; history is kept.
func (e *Engine) SetTopic(ctx context.Context, id, topic string) (SessionView, error) {
	topic = normalizeTopic(topic)
	if topic == "" {
		return SessionView{}, ErrEmptyTopic
	}
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		applyTopic(s, topic)
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	slog.Info("topic set", "session_id", id, "topic", topic)
	return sess.View(), nil
}

// applyTopic switches s to an already normalized topic, clearing the
// checklist and quiz when it differs from the current one.
func applyTopic(s *Session, topic string) {
	if s.Topic == topic {
		return
	}
	s.Topic = topic
	s.Checklist.Clear()
	s.Quiz = nil
}

// GenerateChecklist asks the generator for study items about the current
// topic, resolves a video link for each and replaces the checklist. The
// active quiz is discarded. On failure the previous checklist stays.
func (e *Engine) GenerateChecklist(ctx context.Context, id string, onProgress ProgressFunc) (SessionView, error) {
	return e.GenerateChecklistFor(ctx, id, "", onProgress)
}

// GenerateChecklistFor is GenerateChecklist with an optional topic switch.
// A non-blank topic is applied together with the new checklist, so a failed
// generation or a cancelled lookup leaves topic, checklist and quiz as they
// were. A blank topic keeps the current one.
func (e *Engine) GenerateChecklistFor(ctx context.Context, id, topic string, onProgress ProgressFunc) (SessionView, error) {
	report := func(stage string, f float64) {
		if onProgress != nil {
			onProgress(Progress{Stage: stage, Fraction: f})
		}
	}
	topic = normalizeTopic(topic)

	sess, err := e.mutate(ctx, id, func(s *Session) error {
		if topic != "" {
			applyTopic(s, topic)
		}
		if s.Topic == "" {
			return ErrNoTopic
		}

		ctx, span := tracer.Start(ctx, "checklist.generate")
		defer span.End()
		span.SetAttributes(attribute.String("topic", s.Topic))

		report(StageGenerating, 0)
		items, err := e.generateItems(ctx, id, s.Topic)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			slog.Error("checklist generation failed", "session_id", id, "topic", s.Topic, "error", err)
			return err
		}
		report(StageGenerating, 1)

		report(StageResolving, 0)
		res := e.resolver.ResolveAll(ctx, items, func(f float64) { report(StageResolving, f) })
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolving cancelled")
			slog.Warn("checklist discarded, lookups cancelled", "session_id", id, "topic", s.Topic, "error", err)
			return err
		}

		s.Checklist.Set(items)
		s.Checklist.SetLinks(LinkMap(res))
		s.Quiz = nil

		slog.Info("checklist generated",
			"session_id", id,
			"topic", s.Topic,
			"items", len(items),
			"links", len(s.Checklist.Links),
		)
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	report(StageDone, 1)
	return sess.View(), nil
}

func (e *Engine) generateItems(ctx context.Context, id, topic string) ([]string, error) {
	if e.gen == nil {
		return nil, &GenerationError{Op: "generate checklist", Err: errors.New("no text generator configured")}
	}
	prompt, err := e.prompts.Checklist(topic, e.checklistTarget)
	if err != nil {
		return nil, &GenerationError{Op: "generate checklist", Err: err}
	}

	ctx = ai.WithTask(ai.WithBudgetKey(ctx, id), ai.TaskChecklist)
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gen.Generate(ctx, prompt.Text, prompt.MaxTokens)
	if err != nil {
		return nil, &GenerationError{Op: "generate checklist", Err: err}
	}
	slog.Debug("raw checklist output", "session_id", id, "raw", raw)

	items := ParseChecklist(raw, e.checklistMax)
	if len(items) < e.checklistMin {
		return nil, &GenerationError{
			Op:  "generate checklist",
			Err: fmt.Errorf("only %d usable items, need at least %d", len(items), e.checklistMin),
		}
	}
	return items, nil
}

// ToggleItem sets the completion flag of the item addressed by id or text.
func (e *Engine) ToggleItem(ctx context.Context, id, ref string, completed bool) (SessionView, error) {
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		_, err := s.Checklist.Toggle(ref, completed)
		return err
	})
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// GenerateQuiz replaces the active quiz with a new one built from the
// checklist. The old quiz stays if generation fails.
func (e *Engine) GenerateQuiz(ctx context.Context, id string, req QuizRequest) (SessionView, error) {
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		if s.Checklist.Total() == 0 {
			return ErrNoChecklist
		}
		quiz, err := e.quizzes.Generate(ai.WithBudgetKey(ctx, id), s.Topic, req, s.Checklist.Items)
		if err != nil {
			return err
		}
		s.Quiz = quiz
		slog.Info("quiz generated",
			"session_id", id,
			"quiz_id", quiz.ID,
			"questions", len(quiz.Questions),
			"difficulty", quiz.Difficulty,
			"strategy", quiz.Strategy,
		)
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Answer records the option chosen for a 1-based question index.
func (e *Engine) Answer(ctx context.Context, id string, index int, option string) (SessionView, error) {
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		if s.Quiz == nil {
			return ErrNoQuiz
		}
		return s.Quiz.RecordAnswer(index, option)
	})
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// Submit grades the active quiz and appends the result to history in the
// same saved snapshot. The result is then handed to the recorder; recorder
// failures are logged only.
func (e *Engine) Submit(ctx context.Context, id string) (QuizResult, error) {
	var result QuizResult
	_, err := e.mutate(ctx, id, func(s *Session) error {
		if s.Quiz == nil {
			return ErrNoQuiz
		}
		res, err := s.Quiz.Submit(e.now())
		if err != nil {
			return err
		}
		s.History = append(s.History, res)
		result = res
		return nil
	})
	if err != nil {
		return QuizResult{}, err
	}

	slog.Info("quiz submitted",
		"session_id", id,
		"quiz_id", result.QuizID,
		"score", result.Score,
		"total", result.Total,
		"percentage", result.Percentage,
	)
	if err := e.recorder.RecordResult(ctx, id, result); err != nil {
		slog.Error("failed to archive quiz result", "session_id", id, "result_id", result.ID, "error", err)
	}
	return result.clone(), nil
}

// Retake replaces the active quiz with a fresh one of the same size and
// difficulty drawn from the whole checklist.
func (e *Engine) Retake(ctx context.Context, id string) (SessionView, error) {
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		if s.Quiz == nil {
			return ErrNoQuiz
		}
		if s.Checklist.Total() == 0 {
			return ErrNoChecklist
		}
		quiz, err := e.quizzes.Retake(ai.WithBudgetKey(ctx, id), s.Quiz, s.Checklist.Items)
		if err != nil {
			return err
		}
		s.Quiz = quiz
		slog.Info("quiz retaken", "session_id", id, "quiz_id", quiz.ID, "questions", len(quiz.Questions))
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// NewQuiz discards the active quiz so a new one can be configured. Its
// result, if submitted, is already in history.
func (e *Engine) NewQuiz(ctx context.Context, id string) (SessionView, error) {
	sess, err := e.mutate(ctx, id, func(s *Session) error {
		s.Quiz = nil
		return nil
	})
	if err != nil {
		return SessionView{}, err
	}
	return sess.View(), nil
}

// mutate runs fn on a private copy of the session and saves the copy only
// if fn succeeds.
func (e *Engine) mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	sess, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = e.now()
	if err := e.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func normalizeTopic(topic string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(norm.NFC.String(topic)), " ")
}

// sessionLocks hands out one mutex per session id. Entries are dropped when
// no goroutine holds or waits for them.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	sl, ok := l.m[id]
	if !ok {
		sl = &sessionLock{}
		l.m[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
