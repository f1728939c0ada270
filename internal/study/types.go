package study

import "strings"

// Difficulty is a qualitative generation parameter for quiz questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty accepts easy/medium/hard and the beginner/intermediate/
// advanced aliases, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "beginner":
		return DifficultyEasy, nil
	case "medium", "intermediate":
		return DifficultyMedium, nil
	case "hard", "advanced":
		return DifficultyHard, nil
	}
	return "", ErrInvalidDifficulty
}

func (d Difficulty) valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Strategy selects which checklist items are eligible for a quiz.
type Strategy string

const (
	// StrategyRandom samples from every item.
	StrategyRandom Strategy = "random"
	// StrategyIncomplete samples only from items not yet completed.
	StrategyIncomplete Strategy = "incomplete"
	// StrategyAll walks every item in checklist order.
	StrategyAll Strategy = "all"
)

// ParseStrategy parses a strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyRandom:
		return StrategyRandom, nil
	case StrategyIncomplete:
		return StrategyIncomplete, nil
	case StrategyAll:
		return StrategyAll, nil
	}
	return "", ErrInvalidStrategy
}

func (s Strategy) valid() bool {
	return s == StrategyRandom || s == StrategyIncomplete || s == StrategyAll
}

// QuizState is the lifecycle state of a quiz.
type QuizState string

const (
	QuizConfiguring QuizState = "configuring"
	QuizInProgress  QuizState = "in_progress"
	QuizSubmitted   QuizState = "submitted"
)
