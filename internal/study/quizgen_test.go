package study

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func newTestQuizEngine(gen Generator) *QuizEngine {
	return NewQuizEngine(QuizEngineConfig{
		Generator: gen,
		Rand:      fixedRand(),
		Now:       fixedClock(),
	})
}

func sourceTopics(q *Quiz) []string {
	out := make([]string, len(q.Questions))
	for i, question := range q.Questions {
		out[i] = question.SourceTopic
	}
	return out
}

func TestQuizEngine_ClampsCountToPool(t *testing.T) {
	gen := newScriptedGenerator("")
	engine := newTestQuizEngine(gen)
	pool := itemsFrom("Intro to Recursion", "Big-O Notation", "Sorting Algorithms")

	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{
		Difficulty: DifficultyEasy,
		Count:      10,
		Strategy:   StrategyRandom,
	}, pool)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(quiz.Questions) != 3 {
		t.Fatalf("questions = %d, want 3 (clamped to pool)", len(quiz.Questions))
	}

	topics := sourceTopics(quiz)
	slices.Sort(topics)
	if !slices.Equal(topics, []string{"Big-O Notation", "Intro to Recursion", "Sorting Algorithms"}) {
		t.Errorf("source topics = %v, want each pool item exactly once", topics)
	}
	for _, q := range quiz.Questions {
		if !q.hasOption(q.Correct) {
			t.Errorf("correct option %q not among %v", q.Correct, q.Options)
		}
	}
	if quiz.State != QuizConfiguring || len(quiz.Answers) != 0 {
		t.Errorf("new quiz state=%q answers=%v", quiz.State, quiz.Answers)
	}
	if quiz.Requested != 10 || quiz.Difficulty != DifficultyEasy {
		t.Errorf("quiz metadata = requested %d difficulty %q", quiz.Requested, quiz.Difficulty)
	}
}

func TestQuizEngine_RespectsMaxQuestions(t *testing.T) {
	engine := NewQuizEngine(QuizEngineConfig{
		Generator:    newScriptedGenerator(""),
		MaxQuestions: 2,
		Rand:         fixedRand(),
	})
	pool := itemsFrom("Intro to Recursion", "Big-O Notation", "Sorting Algorithms", "Graph Traversal")

	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 4}, pool)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(quiz.Questions) != 2 {
		t.Errorf("questions = %d, want 2", len(quiz.Questions))
	}
	if quiz.Difficulty != DifficultyMedium || quiz.Strategy != StrategyRandom {
		t.Errorf("defaults = %q/%q, want Medium/random", quiz.Difficulty, quiz.Strategy)
	}
}

func TestQuizEngine_IncompleteStrategy(t *testing.T) {
	pool := itemsFrom("Intro to Recursion", "Big-O Notation", "Sorting Algorithms")
	pool[0].Completed = true
	pool[2].Completed = true

	engine := newTestQuizEngine(newScriptedGenerator(""))
	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 3, Strategy: StrategyIncomplete}, pool)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := sourceTopics(quiz); !slices.Equal(got, []string{"Big-O Notation"}) {
		t.Errorf("source topics = %v, want only the incomplete item", got)
	}

	pool[1].Completed = true
	_, err = engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 3, Strategy: StrategyIncomplete}, pool)
	if !errors.Is(err, ErrEmptyPool) {
		t.Errorf("error = %v, want ErrEmptyPool", err)
	}
}

func TestQuizEngine_AllStrategyKeepsChecklistOrder(t *testing.T) {
	texts := []string{"Intro to Recursion", "Big-O Notation", "Sorting Algorithms", "Graph Traversal"}
	engine := NewQuizEngine(QuizEngineConfig{
		Generator:   newScriptedGenerator(""),
		Concurrency: 4,
		Rand:        fixedRand(),
	})

	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 4, Strategy: StrategyAll}, itemsFrom(texts...))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := sourceTopics(quiz); !slices.Equal(got, texts) {
		t.Errorf("source topics = %v, want %v", got, texts)
	}
}

func TestQuizEngine_ReplacesUnparseableTopic(t *testing.T) {
	gen := newScriptedGenerator("")
	gen.scripts["Intro to Recursion"] = []string{"I cannot write a question about that."}

	engine := newTestQuizEngine(gen)
	pool := itemsFrom("Intro to Recursion", "Big-O Notation", "Sorting Algorithms")

	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 2, Strategy: StrategyAll}, pool)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := sourceTopics(quiz); !slices.Equal(got, []string{"Big-O Notation", "Sorting Algorithms"}) {
		t.Errorf("source topics = %v, want the broken topic replaced", got)
	}
	if n := gen.callsFor("Intro to Recursion"); n != defaultQuestionAttempts {
		t.Errorf("attempts for broken topic = %d, want %d", n, defaultQuestionAttempts)
	}
}

func TestQuizEngine_RetriesParseFailure(t *testing.T) {
	gen := newScriptedGenerator("")
	gen.scripts["Big-O Notation"] = []string{
		"Question: What is O(1)?\nA) Constant\nB) Linear\nCorrect: A",
		wellFormedQuestion("Big-O Notation"),
	}

	engine := newTestQuizEngine(gen)
	quiz, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{Count: 1}, itemsFrom("Big-O Notation"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(quiz.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(quiz.Questions))
	}
	if n := gen.callsFor("Big-O Notation"); n != 2 {
		t.Errorf("generator calls = %d, want 2", n)
	}
}

func TestQuizEngine_Failures(t *testing.T) {
	pool := itemsFrom("Intro to Recursion", "Big-O Notation")

	t.Run("generator error aborts", func(t *testing.T) {
		gen := newScriptedGenerator("")
		gen.errFor["Big-O Notation"] = errors.New("rate limited")
		_, err := newTestQuizEngine(gen).Generate(context.Background(), "Algorithms", QuizRequest{Count: 2}, pool)

		var ge *GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("error = %v, want *GenerationError", err)
		}
		if KindOf(err) != KindGeneration {
			t.Errorf("KindOf() = %v", KindOf(err))
		}
	})

	t.Run("nothing parseable", func(t *testing.T) {
		gen := newScriptedGenerator("")
		gen.scripts["Intro to Recursion"] = []string{"nope"}
		gen.scripts["Big-O Notation"] = []string{"nope"}
		_, err := newTestQuizEngine(gen).Generate(context.Background(), "Algorithms", QuizRequest{Count: 2}, pool)

		var ge *GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("error = %v, want *GenerationError", err)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		engine := newTestQuizEngine(newScriptedGenerator(""))
		cases := []struct {
			req  QuizRequest
			want error
		}{
			{QuizRequest{Count: 0}, ErrInvalidCount},
			{QuizRequest{Count: -1}, ErrInvalidCount},
			{QuizRequest{Count: 1, Difficulty: "Insane"}, ErrInvalidDifficulty},
			{QuizRequest{Count: 1, Strategy: "weighted"}, ErrInvalidStrategy},
		}
		for _, c := range cases {
			if _, err := engine.Generate(context.Background(), "Algorithms", c.req, pool); !errors.Is(err, c.want) {
				t.Errorf("Generate(%+v) error = %v, want %v", c.req, err, c.want)
			}
		}
	})

	t.Run("empty pool", func(t *testing.T) {
		_, err := newTestQuizEngine(newScriptedGenerator("")).Generate(context.Background(), "Algorithms", QuizRequest{Count: 1}, nil)
		if !errors.Is(err, ErrEmptyPool) {
			t.Errorf("error = %v, want ErrEmptyPool", err)
		}
	})
}

func TestQuizEngine_Retake(t *testing.T) {
	gen := newScriptedGenerator("")
	engine := newTestQuizEngine(gen)
	pool := itemsFrom("Intro to Recursion", "Big-O Notation", "Sorting Algorithms", "Graph Traversal")
	pool[0].Completed = true
	pool[1].Completed = true

	first, err := engine.Generate(context.Background(), "Algorithms", QuizRequest{
		Difficulty: DifficultyHard,
		Count:      2,
		Strategy:   StrategyIncomplete,
	}, pool)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	retake, err := engine.Retake(context.Background(), first, pool)
	if err != nil {
		t.Fatalf("Retake() error = %v", err)
	}
	if retake.ID == first.ID {
		t.Error("retake should be a new quiz")
	}
	if len(retake.Questions) != 2 || retake.Difficulty != DifficultyHard {
		t.Errorf("retake = %d questions at %q, want 2 at Hard", len(retake.Questions), retake.Difficulty)
	}
	if retake.Strategy != StrategyRandom || retake.State != QuizConfiguring {
		t.Errorf("retake strategy=%q state=%q", retake.Strategy, retake.State)
	}

	if _, err := engine.Retake(context.Background(), nil, pool); !errors.Is(err, ErrNoQuiz) {
		t.Errorf("Retake(nil) error = %v, want ErrNoQuiz", err)
	}
}
