package study

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Session aggregates everything one user works on: a topic, its checklist
// with links, at most one quiz, and the score history.
type Session struct {
	ID        string       `json:"id"`
	Topic     string       `json:"topic"`
	Checklist Checklist    `json:"checklist"`
	Quiz      *Quiz        `json:"quiz,omitempty"`
	History   []QuizResult `json:"history"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewSession returns an empty session. A blank id gets a generated one.
func NewSession(id string, now time.Time) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Checklist = s.Checklist.clone()
	c.Quiz = s.Quiz.clone()
	if s.History != nil {
		c.History = make([]QuizResult, len(s.History))
		for i, r := range s.History {
			c.History[i] = r.clone()
		}
	}
	return &c
}

// ItemView is a checklist item as presented to the user. Position is 1-based.
type ItemView struct {
	Position  int    `json:"position"`
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	URL       string `json:"url,omitempty"`
}

// ChecklistView is the checklist plus its derived progress values.
type ChecklistView struct {
	Items      []ItemView `json:"items"`
	Completed  int        `json:"completed"`
	Remaining  int        `json:"remaining"`
	Total      int        `json:"total"`
	Ratio      float64    `json:"ratio"`
	Percentage float64    `json:"percentage"`
}

// QuestionView hides the correct option. Index is 1-based.
type QuestionView struct {
	Index       int      `json:"index"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer,omitempty"`
	SourceTopic string   `json:"source_topic"`
}

// QuizView is the active quiz as presented to the user.
type QuizView struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic"`
	Difficulty Difficulty     `json:"difficulty"`
	Strategy   Strategy       `json:"strategy"`
	State      QuizState      `json:"state"`
	Requested  int            `json:"requested"`
	Questions  []QuestionView `json:"questions"`
	Answered   int            `json:"answered"`
	Total      int            `json:"total"`
	Result     *QuizResult    `json:"result,omitempty"`
}

// ScoreSummary aggregates the score history.
type ScoreSummary struct {
	Attempts          int         `json:"attempts"`
	Latest            *QuizResult `json:"latest,omitempty"`
	BestPercentage    float64     `json:"best_percentage"`
	AveragePercentage float64     `json:"average_percentage"`
}

// SessionView is the read-only snapshot handed to front ends.
type SessionView struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic"`
	Checklist ChecklistView `json:"checklist"`
	Quiz      *QuizView     `json:"quiz,omitempty"`
	Scores    ScoreSummary  `json:"scores"`
}

// ReviewItem shows one graded question after submission.
type ReviewItem struct {
	Index       int      `json:"index"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Chosen      string   `json:"chosen"`
	Correct     string   `json:"correct"`
	IsCorrect   bool     `json:"is_correct"`
	SourceTopic string   `json:"source_topic"`
	URL         string   `json:"url,omitempty"`
}

// View derives the presentation snapshot. Derived values are recomputed on
// every call.
func (s *Session) View() SessionView {
	return SessionView{
		ID:        s.ID,
		Topic:     s.Topic,
		Checklist: s.checklistView(),
		Quiz:      s.quizView(),
		Scores:    Summarize(s.History),
	}
}

func (s *Session) checklistView() ChecklistView {
	c := &s.Checklist
	items := make([]ItemView, len(c.Items))
	for i, it := range c.Items {
		items[i] = ItemView{
			Position:  i + 1,
			ID:        it.ID,
			Text:      it.Text,
			Completed: it.Completed,
			URL:       c.Links[it.Text],
		}
	}
	ratio := c.CompletionRatio()
	return ChecklistView{
		Items:      items,
		Completed:  c.CompletedCount(),
		Remaining:  c.Total() - c.CompletedCount(),
		Total:      c.Total(),
		Ratio:      ratio,
		Percentage: Percentage(c.CompletedCount(), c.Total()),
	}
}

func (s *Session) quizView() *QuizView {
	q := s.Quiz
	if q == nil {
		return nil
	}
	questions := make([]QuestionView, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = QuestionView{
			Index:       i + 1,
			Prompt:      question.Prompt,
			Options:     append([]string(nil), question.Options...),
			Answer:      q.Answers[i+1],
			SourceTopic: question.SourceTopic,
		}
	}
	v := &QuizView{
		ID:         q.ID,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		Strategy:   q.Strategy,
		State:      q.State,
		Requested:  q.Requested,
		Questions:  questions,
		Answered:   len(q.Answers),
		Total:      len(q.Questions),
	}
	if q.Result != nil {
		r := q.Result.clone()
		v.Result = &r
	}
	return v
}

// Review returns the graded questions of the submitted quiz.
func (s *Session) Review() ([]ReviewItem, error) {
	q := s.Quiz
	if q == nil {
		return nil, ErrNoQuiz
	}
	if q.State != QuizSubmitted || q.Result == nil {
		return nil, ErrNotSubmitted
	}
	items := make([]ReviewItem, len(q.Questions))
	for i, question := range q.Questions {
		items[i] = ReviewItem{
			Index:       i + 1,
			Prompt:      question.Prompt,
			Options:     append([]string(nil), question.Options...),
			Chosen:      q.Answers[i+1],
			Correct:     question.Correct,
			IsCorrect:   i < len(q.Result.Correct) && q.Result.Correct[i],
			SourceTopic: question.SourceTopic,
			URL:         s.Checklist.Links[question.SourceTopic],
		}
	}
	return items, nil
}

// Summarize computes attempt count, latest result, best and average
// percentage over history.
func Summarize(history []QuizResult) ScoreSummary {
	if len(history) == 0 {
		return ScoreSummary{}
	}
	var sum, best float64
	for _, r := range history {
		sum += r.Percentage
		if r.Percentage > best {
			best = r.Percentage
		}
	}
	latest := history[len(history)-1].clone()
	avg := sum / float64(len(history))
	return ScoreSummary{
		Attempts:          len(history),
		Latest:            &latest,
		BestPercentage:    best,
		AveragePercentage: math.Round(avg*10) / 10,
	}
}
