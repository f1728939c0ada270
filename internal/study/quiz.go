package study

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuizQuestion is one multiple-choice question. Correct is always one of
// Options.
type QuizQuestion struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     string   `json:"correct"`
	SourceTopic string   `json:"source_topic"`
}

func (q QuizQuestion) hasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// resolveOption maps a user choice onto an option. The exact option text or
// its letter (A to D, any case) is accepted.
func (q QuizQuestion) resolveOption(choice string) (string, bool) {
	if q.hasOption(choice) {
		return choice, true
	}
	c := strings.TrimSpace(choice)
	if q.hasOption(c) {
		return c, true
	}
	if len(c) == 1 {
		idx := int(strings.ToUpper(c)[0]) - 'A'
		if idx >= 0 && idx < len(q.Options) {
			return q.Options[idx], true
		}
	}
	return "", false
}

// Quiz is the active quiz of a session. Answers is keyed by the 1-based
// question index.
type Quiz struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic"`
	Difficulty Difficulty     `json:"difficulty"`
	Strategy   Strategy       `json:"strategy"`
	Requested  int            `json:"requested"`
	Questions  []QuizQuestion `json:"questions"`
	State      QuizState      `json:"state"`
	Answers    map[int]string `json:"answers"`
	CreatedAt  time.Time      `json:"created_at"`
	Result     *QuizResult    `json:"result,omitempty"`
}

// QuizResult is the graded outcome of one submitted quiz. It is never
// modified after creation.
type QuizResult struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quiz_id"`
	Topic       string     `json:"topic"`
	Difficulty  Difficulty `json:"difficulty"`
	Score       int        `json:"score"`
	Total       int        `json:"total"`
	Percentage  float64    `json:"percentage"`
	Correct     []bool     `json:"correct"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

func newQuiz(topic string, req QuizRequest, questions []QuizQuestion, now time.Time) *Quiz {
	return &Quiz{
		ID:         uuid.NewString(),
		Topic:      topic,
		Difficulty: req.Difficulty,
		Strategy:   req.Strategy,
		Requested:  req.Count,
		Questions:  questions,
		State:      QuizConfiguring,
		Answers:    make(map[int]string),
		CreatedAt:  now,
	}
}

// RecordAnswer stores the chosen option for the 1-based question index. The
// first answer moves the quiz from configuring to in progress.
func (q *Quiz) RecordAnswer(index int, option string) error {
	if q.State == QuizSubmitted {
		return ErrQuizClosed
	}
	if index < 1 || index > len(q.Questions) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidIndex, index, len(q.Questions))
	}
	chosen, ok := q.Questions[index-1].resolveOption(option)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOption, option)
	}
	if q.Answers == nil {
		q.Answers = make(map[int]string)
	}
	q.Answers[index] = chosen
	q.State = QuizInProgress
	return nil
}

// Unanswered returns the 1-based indices without an answer, ascending.
func (q *Quiz) Unanswered() []int {
	var missing []int
	for i := 1; i <= len(q.Questions); i++ {
		if _, ok := q.Answers[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Submit grades the quiz and moves it to submitted. It fails without
// changing anything when questions are unanswered or the quiz was already
// submitted.
func (q *Quiz) Submit(now time.Time) (QuizResult, error) {
	if q.State == QuizSubmitted {
		return QuizResult{}, ErrAlreadySubmitted
	}
	if missing := q.Unanswered(); len(missing) > 0 {
		return QuizResult{}, &IncompleteAnswersError{Missing: missing}
	}

	correct := make([]bool, len(q.Questions))
	score := 0
	for i, question := range q.Questions {
		if q.Answers[i+1] == question.Correct {
			correct[i] = true
			score++
		}
	}

	result := QuizResult{
		ID:          uuid.NewString(),
		QuizID:      q.ID,
		Topic:       q.Topic,
		Difficulty:  q.Difficulty,
		Score:       score,
		Total:       len(q.Questions),
		Percentage:  Percentage(score, len(q.Questions)),
		Correct:     correct,
		SubmittedAt: now,
	}
	q.State = QuizSubmitted
	q.Result = &result
	return result, nil
}

// Percentage returns 100*score/total rounded to one decimal, or 0 when total
// is zero.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(1000*float64(score)/float64(total)) / 10
}

func (q *Quiz) clone() *Quiz {
	if q == nil {
		return nil
	}
	c := *q
	c.Questions = make([]QuizQuestion, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		c.Questions[i] = question
	}
	c.Answers = make(map[int]string, len(q.Answers))
	for k, v := range q.Answers {
		c.Answers[k] = v
	}
	if q.Result != nil {
		r := q.Result.clone()
		c.Result = &r
	}
	return &c
}

func (r QuizResult) clone() QuizResult {
	r.Correct = append([]bool(nil), r.Correct...)
	return r
}
