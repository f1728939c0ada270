package study

import (
	"errors"
	"testing"
)

func TestChecklist_SetResetsState(t *testing.T) {
	var c Checklist
	c.Set([]string{"Intro to Recursion", "Big-O Notation"})
	c.SetLinks(map[string]string{"Big-O Notation": "https://www.youtube.com/watch?v=x"})
	if _, err := c.Toggle("Big-O Notation", true); err != nil {
		t.Fatal(err)
	}

	c.Set([]string{"Sorting Algorithms", "Graph Traversal"})

	if c.Total() != 2 {
		t.Fatalf("Total() = %d, want 2", c.Total())
	}
	if c.CompletedCount() != 0 {
		t.Errorf("CompletedCount() = %d, want 0 after Set", c.CompletedCount())
	}
	if len(c.Links) != 0 {
		t.Errorf("Links = %v, want empty after Set", c.Links)
	}
	if c.Items[0].ID == "" || c.Items[0].ID == c.Items[1].ID {
		t.Errorf("items need distinct IDs, got %q and %q", c.Items[0].ID, c.Items[1].ID)
	}
}

func TestChecklist_ToggleByIDAndText(t *testing.T) {
	var c Checklist
	c.Set([]string{"Intro to Recursion", "Big-O Notation", "Sorting Algorithms"})

	if _, err := c.Toggle(c.Items[1].ID, true); err != nil {
		t.Fatalf("Toggle(id) error = %v", err)
	}
	if !c.Items[1].Completed {
		t.Error("item addressed by ID should be completed")
	}

	if _, err := c.Toggle("Sorting Algorithms", true); err != nil {
		t.Fatalf("Toggle(text) error = %v", err)
	}
	if _, err := c.Toggle("Sorting Algorithms", false); err != nil {
		t.Fatalf("Toggle(text,false) error = %v", err)
	}
	if c.Items[2].Completed {
		t.Error("item should be uncompleted again")
	}

	_, err := c.Toggle("Dynamic Programming", true)
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Toggle(unknown) error = %v, want ErrItemNotFound", err)
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf() = %v, want not_found", KindOf(err))
	}
}

func TestChecklist_CompletionRatio(t *testing.T) {
	var empty Checklist
	if got := empty.CompletionRatio(); got != 0 {
		t.Errorf("empty CompletionRatio() = %v, want 0", got)
	}

	var c Checklist
	c.Set([]string{"Intro to Recursion", "Big-O Notation", "Sorting Algorithms", "Graph Traversal"})

	steps := []struct {
		ref  int
		want float64
	}{
		{0, 0.25},
		{1, 0.5},
		{2, 0.75},
		{3, 1},
	}
	for _, s := range steps {
		c.Toggle(c.Items[s.ref].ID, true)
		got := c.CompletionRatio()
		if got != s.want {
			t.Errorf("after completing %d: CompletionRatio() = %v, want %v", s.ref, got, s.want)
		}
		if got < 0 || got > 1 {
			t.Errorf("CompletionRatio() = %v out of range", got)
		}
	}
	if c.CompletedCount() > c.Total() {
		t.Error("completed count exceeds total")
	}
}

func TestChecklist_SetLinksIgnoresUnknown(t *testing.T) {
	var c Checklist
	c.Set([]string{"Intro to Recursion"})
	c.SetLinks(map[string]string{
		"Intro to Recursion": "https://www.youtube.com/watch?v=a",
		"Not an item at all": "https://www.youtube.com/watch?v=b",
		"":                   "https://www.youtube.com/watch?v=c",
	})
	if len(c.Links) != 1 || c.Links["Intro to Recursion"] == "" {
		t.Errorf("Links = %v, want only the known item", c.Links)
	}
}

func TestChecklist_CloneIsIndependent(t *testing.T) {
	var c Checklist
	c.Set([]string{"Intro to Recursion"})
	c.SetLinks(map[string]string{"Intro to Recursion": "u"})

	cp := c.clone()
	cp.Items[0].Completed = true
	cp.Links["Intro to Recursion"] = "changed"

	if c.Items[0].Completed || c.Links["Intro to Recursion"] != "u" {
		t.Error("mutating the clone changed the original")
	}
}
