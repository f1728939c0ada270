package prompts_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-study/internal/prompts"
)

func TestDefault_Checklist(t *testing.T) {
	p, err := prompts.Default().Checklist("Data Structures", 10)
	if err != nil {
		t.Fatalf("Checklist() error = %v", err)
	}
	if !strings.Contains(p.Text, "max 10 items") {
		t.Errorf("prompt missing item cap: %q", p.Text)
	}
	if !strings.Contains(p.Text, "studying Data Structures") {
		t.Errorf("prompt missing topic: %q", p.Text)
	}
	if p.MaxTokens != 300 {
		t.Errorf("MaxTokens = %d, want 300", p.MaxTokens)
	}
}

func TestDefault_Question(t *testing.T) {
	p, err := prompts.Default().Question("Algorithms", "Big-O Notation", "Hard")
	if err != nil {
		t.Fatalf("Question() error = %v", err)
	}
	for _, want := range []string{"hard level quiz question on Big-O Notation", "Correct:", "D) <option>", "edge cases"} {
		if !strings.Contains(p.Text, want) {
			t.Errorf("prompt missing %q:\n%s", want, p.Text)
		}
	}
}

func TestDefault_QuestionUnknownDifficulty(t *testing.T) {
	p, err := prompts.Default().Question("Algorithms", "Sorting", "legendary")
	if err != nil {
		t.Fatalf("Question() error = %v", err)
	}
	if !strings.Contains(p.Text, "legendary level") {
		t.Errorf("difficulty label not rendered: %q", p.Text)
	}
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := `
checklist:
  max_tokens: 500
  template: "List {{.Count}} things about {{.Topic}}."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := prompts.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, _ := set.Checklist("Go", 8)
	if p.Text != "List 8 things about Go." {
		t.Errorf("Checklist() = %q", p.Text)
	}
	if p.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want 500", p.MaxTokens)
	}

	// Question template falls back to the default.
	q, err := set.Question("Go", "Goroutines and channels", "easy")
	if err != nil {
		t.Fatalf("Question() error = %v", err)
	}
	if !strings.Contains(q.Text, "Correct:") {
		t.Errorf("question template not inherited from defaults: %q", q.Text)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	set, err := prompts.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if set == nil {
		t.Fatal("Load(\"\") returned nil set")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badYAML, []byte("checklist: [unclosed"), 0o644)

	badTemplate := filepath.Join(dir, "tmpl.yaml")
	os.WriteFile(badTemplate, []byte("checklist:\n  template: \"{{.Topic\"\n"), 0o644)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.yaml")},
		{"invalid yaml", badYAML},
		{"invalid template", badTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := prompts.Load(tt.path); err == nil {
				t.Errorf("Load(%s) should fail", tt.name)
			}
		})
	}
}

func TestParse_RequiresTemplates(t *testing.T) {
	if _, err := prompts.Parse([]byte("difficulties:\n  easy: x\n")); err == nil {
		t.Fatal("Parse() should reject a document without templates")
	}
}
