package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-study/internal/study"
)

var optionLetters = []string{"A", "B", "C", "D"}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64)
}

func formatChecklist(view study.SessionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checklist for %s:\n", view.Topic)
	for _, it := range view.Checklist.Items {
		mark := "[ ]"
		if it.Completed {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "%d. %s %s\n", it.Position, mark, it.Text)
		if it.URL != "" {
			fmt.Fprintf(&b, "   %s\n", it.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatQuiz(q *study.QuizView) string {
	if q == nil {
		return "There is no active quiz. Start one with /quiz."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s quiz on %s (%d questions)\n", q.Difficulty, q.Topic, q.Total)
	for _, question := range q.Questions {
		fmt.Fprintf(&b, "\nQ%d. %s\n", question.Index, question.Prompt)
		for i, opt := range question.Options {
			letter := strconv.Itoa(i + 1)
			if i < len(optionLetters) {
				letter = optionLetters[i]
			}
			fmt.Fprintf(&b, "%s) %s\n", letter, opt)
		}
	}
	b.WriteString("\nAnswer with /answer <question> <letter>, e.g. /answer 1 B, then /submit.")
	return b.String()
}

func formatResult(r study.QuizResult, review []study.ReviewItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d/%d (%s%%)\n", r.Score, r.Total, formatPercent(r.Percentage))
	for _, it := range review {
		if it.IsCorrect {
			fmt.Fprintf(&b, "\nQ%d correct: %s\n", it.Index, it.Correct)
			continue
		}
		fmt.Fprintf(&b, "\nQ%d wrong. You chose %s, the answer is %s\n", it.Index, it.Chosen, it.Correct)
		if it.URL != "" {
			fmt.Fprintf(&b, "Review %s: %s\n", it.SourceTopic, it.URL)
		}
	}
	b.WriteString("\n/retake for new questions, /newquiz to change settings.")
	return b.String()
}

func formatProgress(view study.SessionView) string {
	if view.Topic == "" {
		return "No topic yet. Start with /topic <subject>."
	}
	var b strings.Builder
	c := view.Checklist
	fmt.Fprintf(&b, "Topic: %s\n", view.Topic)
	if c.Total == 0 {
		b.WriteString("No checklist yet. Send /checklist to generate one.\n")
	} else {
		fmt.Fprintf(&b, "Checklist: %d/%d done (%s%%), %d remaining\n", c.Completed, c.Total, formatPercent(c.Percentage), c.Remaining)
	}
	if q := view.Quiz; q != nil && q.State != study.QuizSubmitted {
		fmt.Fprintf(&b, "Quiz in progress: %d/%d answered\n", q.Answered, q.Total)
	}
	s := view.Scores
	if s.Attempts == 0 {
		b.WriteString("No quiz attempts yet.")
	} else {
		fmt.Fprintf(&b, "Quizzes: %d taken, best %s%%, average %s%%", s.Attempts, formatPercent(s.BestPercentage), formatPercent(s.AveragePercentage))
	}
	return b.String()
}

func formatHistory(history []study.QuizResult) string {
	if len(history) == 0 {
		return "No quiz attempts yet. Start one with /quiz."
	}
	var b strings.Builder
	b.WriteString("Quiz history:\n")
	for i, r := range history {
		fmt.Fprintf(&b, "%d. %s, %s: %d/%d (%s%%)\n", i+1, r.SubmittedAt.UTC().Format("2006-01-02 15:04"), r.Difficulty, r.Score, r.Total, formatPercent(r.Percentage))
	}
	s := study.Summarize(history)
	fmt.Fprintf(&b, "Best %s%%, average %s%%", formatPercent(s.BestPercentage), formatPercent(s.AveragePercentage))
	return b.String()
}
