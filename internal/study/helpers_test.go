package study

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// scriptedGenerator answers checklist prompts with a fixed text and question
// prompts with a well-formed question whose correct option is the item
// itself, unless a script for that item says otherwise.
type scriptedGenerator struct {
	mu sync.Mutex

	checklist    string
	checklistErr error
	// scripts holds successive replies per quiz item; the last one repeats.
	scripts map[string][]string
	errFor  map[string]error

	calls     int
	itemCalls map[string]int
}

func newScriptedGenerator(checklist string) *scriptedGenerator {
	return &scriptedGenerator{
		checklist: checklist,
		scripts:   make(map[string][]string),
		errFor:    make(map[string]error),
		itemCalls: make(map[string]int),
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	item, ok := promptItem(prompt)
	if !ok {
		if g.checklistErr != nil {
			return "", g.checklistErr
		}
		return g.checklist, nil
	}

	n := g.itemCalls[item]
	g.itemCalls[item] = n + 1
	if err := g.errFor[item]; err != nil {
		return "", err
	}
	if script := g.scripts[item]; len(script) > 0 {
		return script[min(n, len(script)-1)], nil
	}
	return wellFormedQuestion(item), nil
}

func (g *scriptedGenerator) callsFor(item string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.itemCalls[item]
}

func (g *scriptedGenerator) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// promptItem extracts the checklist item from a rendered question prompt.
func promptItem(prompt string) (string, bool) {
	const start, end = "quiz question on ", ", as part of studying"
	i := strings.Index(prompt, start)
	if i < 0 {
		return "", false
	}
	rest := prompt[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func wellFormedQuestion(item string) string {
	return fmt.Sprintf(`Question: Which option names the topic %q?
A) %s
B) Something unrelated
C) Another distractor
D) None of these
Correct: A`, item, item)
}

func fixedRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func itemsFrom(texts ...string) []ChecklistItem {
	var c Checklist
	c.Set(texts)
	return c.Items
}
