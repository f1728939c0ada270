// Package prompts loads and renders the prompt templates sent to the text
// generator.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Set holds parsed checklist and question templates.
type Set struct {
	checklist    *template.Template
	question     *template.Template
	checklistMax int
	questionMax  int
	difficulties map[string]string
}

// Default returns the built-in prompt set.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts invalid: %v", err))
	}
	return s
}

// Load reads a YAML prompt file and overlays it on the defaults. Fields the
// file leaves empty keep their default value. An empty path returns Default().
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(defaultYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing default prompts: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	s, err := fromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	slog.Info("prompts loaded", "path", path)
	return s, nil
}

// Parse builds a Set from a complete YAML document.
func Parse(data []byte) (*Set, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing prompts: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc Document) (*Set, error) {
	if strings.TrimSpace(doc.Checklist.Template) == "" {
		return nil, fmt.Errorf("checklist template is empty")
	}
	if strings.TrimSpace(doc.Question.Template) == "" {
		return nil, fmt.Errorf("question template is empty")
	}

	checklist, err := template.New("checklist").Option("missingkey=error").Parse(doc.Checklist.Template)
	if err != nil {
		return nil, fmt.Errorf("checklist template: %w", err)
	}
	question, err := template.New("question").Option("missingkey=error").Parse(doc.Question.Template)
	if err != nil {
		return nil, fmt.Errorf("question template: %w", err)
	}

	difficulties := make(map[string]string, len(doc.Difficulties))
	for k, v := range doc.Difficulties {
		difficulties[strings.ToLower(k)] = strings.TrimSpace(v)
	}

	return &Set{
		checklist:    checklist,
		question:     question,
		checklistMax: positiveOr(doc.Checklist.MaxTokens, 300),
		questionMax:  positiveOr(doc.Question.MaxTokens, 300),
		difficulties: difficulties,
	}, nil
}

// Checklist renders the prompt asking for up to count study topics.
func (s *Set) Checklist(topic string, count int) (Prompt, error) {
	var buf bytes.Buffer
	if err := s.checklist.Execute(&buf, checklistData{Topic: topic, Count: count}); err != nil {
		return Prompt{}, fmt.Errorf("rendering checklist prompt: %w", err)
	}
	return Prompt{Text: strings.TrimSpace(buf.String()), MaxTokens: s.checklistMax}, nil
}

// Question renders the prompt for one multiple-choice question about item.
// difficulty is matched case-insensitively against the guidance table.
func (s *Set) Question(topic, item, difficulty string) (Prompt, error) {
	data := questionData{
		Topic:      topic,
		Item:       item,
		Difficulty: strings.ToLower(difficulty),
		Guidance:   s.difficulties[strings.ToLower(difficulty)],
	}
	var buf bytes.Buffer
	if err := s.question.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("rendering question prompt: %w", err)
	}
	return Prompt{Text: strings.TrimSpace(buf.String()), MaxTokens: s.questionMax}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
