package study

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/unicode/norm"
)

// MinItemLength is the number of characters a checklist line must exceed.
const MinItemLength = 10

var (
	// Leading list markers: bullets, "1.", "1)", "(1)", "Step 1:", checkboxes.
	listMarker = regexp.MustCompile(`^(?:[-*•+–—>]+\s*|\(?\d{1,3}[.):\]]\s*|\d{1,3}\s+-\s+|(?i:step)\s+\d{1,3}\s*[:.)-]?\s*)`)
	checkbox   = regexp.MustCompile(`^\[[ xX✓]?\]\s*`)
	spaces     = regexp.MustCompile(`\s+`)

	optionLine   = regexp.MustCompile(`^\(?([A-Da-d])[).:\]-]\s*(.+)$`)
	answerLine   = regexp.MustCompile(`(?i)^(?:the\s+)?(?:correct\s+answer|correct\s+option|correct|answer)(?:\s+is)?\s*[:=-]?\s*(.+)$`)
	answerLetter = regexp.MustCompile(`^\(?([A-Za-z])\)?(?:[.):\]].*)?$`)
	optionWord   = regexp.MustCompile(`(?i)^(?:option|choice)\s+`)
	questionTag  = regexp.MustCompile(`(?i)^(?:question|q)\s*\d*\s*[:.)-]\s*`)
)

// Lines starting with these (case-insensitively) are conversational filler
// rather than study content.
var boilerplatePrefixes = []string{
	"here's", "here’s", "here is", "here are",
	"sure", "certainly", "absolutely", "of course",
	"below is", "below are", "the following",
	"note:", "note that", "remember:", "tip:",
	"good luck", "happy studying", "happy learning",
	"i hope", "hope this", "let me know", "feel free",
	"this checklist", "this list", "by following", "by mastering",
}

// ParseChecklist extracts up to maxItems distinct study items from raw
// generator output. Enumeration markers are stripped; blank lines, short
// lines, headings and boilerplate are dropped. A non-positive maxItems
// means no cap. The result is deterministic for a given input.
func ParseChecklist(raw string, maxItems int) []string {
	seen := make(map[string]bool)
	var items []string

	for _, line := range strings.Split(raw, "\n") {
		text, ok := cleanChecklistLine(line)
		if !ok || seen[text] {
			continue
		}
		seen[text] = true
		items = append(items, text)
		if maxItems > 0 && len(items) == maxItems {
			break
		}
	}
	return items
}

func cleanChecklistLine(line string) (string, bool) {
	s := strings.TrimSpace(norm.NFC.String(line))
	if s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "```") || isRule(s) {
		return "", false
	}

	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	marked := listMarker.MatchString(s)
	s = listMarker.ReplaceAllString(s, "")
	marked = marked || checkbox.MatchString(s)
	s = checkbox.ReplaceAllString(s, "")
	s = strings.Trim(s, "`\" ")
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")

	if utf8.RuneCountInString(s) <= MinItemLength {
		return "", false
	}
	if strings.HasSuffix(s, ":") || isBoilerplate(s) || (!marked && isChecklistTitle(s)) {
		return "", false
	}
	return s, true
}

// isChecklistTitle matches unenumerated heading lines such as
// "Python Study Checklist".
func isChecklistTitle(s string) bool {
	lower := strings.TrimRight(strings.ToLower(s), ".!")
	return strings.HasSuffix(lower, "checklist") || strings.HasSuffix(lower, "checklists")
}

func isRule(s string) bool {
	return strings.Trim(s, "-=*_ ") == ""
}

// isBoilerplate reports whether s opens with a whole-word boilerplate prefix.
// Hyphens continue a word, so "The following-distance rule" is content.
func isBoilerplate(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range boilerplatePrefixes {
		rest, ok := strings.CutPrefix(lower, p)
		if !ok {
			continue
		}
		next, _ := utf8.DecodeRuneInString(rest)
		if rest == "" || !(unicode.IsLetter(next) || unicode.IsDigit(next) || next == '-') {
			return true
		}
	}
	return false
}

// ParseQuizQuestion parses one multiple-choice question. The expected shape
// is a question line, four options lettered A to D, and a "Correct: <letter>"
// line. A JSON object {"question","options","answer"} is accepted as well.
//
// Structural problems (missing question, fewer than four options, no answer
// line, answer letter outside A to D) yield a *ParseFailure. An answer given
// as text that matches no option is coerced to the first option.
func ParseQuizQuestion(raw, sourceTopic string) (QuizQuestion, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if strings.HasPrefix(body, "{") {
		return parseQuizJSON(raw, body, sourceTopic)
	}

	var (
		questionParts []string
		options       [4]string
		seen          [4]bool
		count         int
		answer        string
		haveAnswer    bool
	)

	for _, line := range strings.Split(body, "\n") {
		s := strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if s == "" {
			continue
		}

		if count > 0 {
			if m := answerLine.FindStringSubmatch(s); m != nil {
				answer, haveAnswer = strings.TrimSpace(m[1]), true
				continue
			}
		}
		if m := optionLine.FindStringSubmatch(s); m != nil && !haveAnswer {
			idx := int(strings.ToUpper(m[1])[0] - 'A')
			if seen[idx] {
				return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: fmt.Sprintf("option %s appears twice", strings.ToUpper(m[1]))}
			}
			seen[idx] = true
			options[idx] = strings.TrimSpace(m[2])
			count++
			continue
		}
		if count == 0 && !isBoilerplate(s) && !strings.HasSuffix(strings.ToLower(s), "question:") {
			s = questionTag.ReplaceAllString(listMarker.ReplaceAllString(s, ""), "")
			questionParts = append(questionParts, s)
		}
	}

	question := strings.TrimSpace(strings.Join(questionParts, " "))
	if question == "" {
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: "missing question text"}
	}
	if count < 4 {
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: fmt.Sprintf("expected 4 options, found %d", count)}
	}
	if !haveAnswer {
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: "missing correct answer line"}
	}
	return buildQuestion(raw, question, options[:], answer, sourceTopic)
}

const questionSchema = `{
	"type": "object",
	"required": ["question", "options", "answer"],
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"options": {
			"type": "array",
			"minItems": 4,
			"maxItems": 4,
			"items": {"type": "string", "minLength": 1}
		},
		"answer": {"type": "string", "minLength": 1}
	}
}`

var questionSchemaLoader = gojsonschema.NewStringLoader(questionSchema)

type jsonQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

func parseQuizJSON(raw, body, sourceTopic string) (QuizQuestion, error) {
	result, err := gojsonschema.Validate(questionSchemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: strings.Join(reasons, "; ")}
	}

	var q jsonQuestion
	if err := json.Unmarshal([]byte(body), &q); err != nil {
		return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	options := make([]string, len(q.Options))
	for i, o := range q.Options {
		o = strings.TrimSpace(o)
		if m := optionLine.FindStringSubmatch(o); m != nil && int(strings.ToUpper(m[1])[0]-'A') == i {
			o = strings.TrimSpace(m[2])
		}
		options[i] = o
	}
	return buildQuestion(raw, questionTag.ReplaceAllString(strings.TrimSpace(q.Question), ""), options, q.Answer, sourceTopic)
}

func buildQuestion(raw, question string, options []string, answer, sourceTopic string) (QuizQuestion, error) {
	distinct := make(map[string]bool, len(options))
	for _, o := range options {
		key := strings.ToLower(o)
		if o == "" || distinct[key] {
			return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: "options must be four distinct non-empty strings"}
		}
		distinct[key] = true
	}

	q := QuizQuestion{
		Prompt:      question,
		Options:     append([]string(nil), options...),
		SourceTopic: sourceTopic,
	}

	answer = optionWord.ReplaceAllString(strings.TrimSpace(answer), "")
	if m := answerLetter.FindStringSubmatch(answer); m != nil {
		letter := strings.ToUpper(m[1])[0]
		if letter < 'A' || letter > 'D' {
			return QuizQuestion{}, &ParseFailure{Raw: raw, Reason: fmt.Sprintf("correct letter %c is out of range", letter)}
		}
		q.Correct = options[letter-'A']
		return q, nil
	}
	for _, o := range options {
		if strings.EqualFold(o, answer) {
			q.Correct = o
			return q, nil
		}
	}

	slog.Warn("correct answer matches no option, defaulting to first option",
		"source_topic", sourceTopic,
		"answer", answer,
	)
	q.Correct = options[0]
	return q, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
