package study

import (
	"fmt"

	"github.com/google/uuid"
)

// ChecklistItem is one unit of study content. ID is stable for the life of
// the checklist and independent of the display text.
type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Checklist is the ordered list of study items for the current topic plus
// the video links resolved for them.
type Checklist struct {
	Items []ChecklistItem `json:"items"`
	// Links maps item text to a video URL. Items without a match are absent.
	Links map[string]string `json:"links,omitempty"`
}

// Set replaces the checklist with fresh, uncompleted items and drops every
// link.
func (c *Checklist) Set(texts []string) {
	items := make([]ChecklistItem, len(texts))
	for i, t := range texts {
		items[i] = ChecklistItem{ID: uuid.NewString(), Text: t}
	}
	c.Items = items
	c.Links = nil
}

// Clear removes all items and links.
func (c *Checklist) Clear() {
	c.Items = nil
	c.Links = nil
}

// SetLinks replaces the link map. Entries for unknown items or with empty
// URLs are ignored.
func (c *Checklist) SetLinks(links map[string]string) {
	known := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		known[it.Text] = true
	}
	c.Links = make(map[string]string, len(links))
	for text, url := range links {
		if known[text] && url != "" {
			c.Links[text] = url
		}
	}
}

// Find returns the position of the item whose ID or exact text equals ref.
func (c *Checklist) Find(ref string) (int, bool) {
	for i, it := range c.Items {
		if it.ID == ref {
			return i, true
		}
	}
	for i, it := range c.Items {
		if it.Text == ref {
			return i, true
		}
	}
	return -1, false
}

// Toggle sets the completion flag of the item addressed by ref.
func (c *Checklist) Toggle(ref string, completed bool) (ChecklistItem, error) {
	i, ok := c.Find(ref)
	if !ok {
		return ChecklistItem{}, fmt.Errorf("%w: %q", ErrItemNotFound, ref)
	}
	c.Items[i].Completed = completed
	return c.Items[i], nil
}

// Total returns the number of items.
func (c *Checklist) Total() int { return len(c.Items) }

// CompletedCount returns the number of completed items.
func (c *Checklist) CompletedCount() int {
	n := 0
	for _, it := range c.Items {
		if it.Completed {
			n++
		}
	}
	return n
}

// CompletionRatio returns completed/total in [0,1], or 0 for an empty list.
func (c *Checklist) CompletionRatio() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.CompletedCount()) / float64(total)
}

// Texts returns item texts in checklist order.
func (c *Checklist) Texts() []string {
	out := make([]string, len(c.Items))
	for i, it := range c.Items {
		out[i] = it.Text
	}
	return out
}

func (c Checklist) clone() Checklist {
	out := Checklist{}
	if c.Items != nil {
		out.Items = append([]ChecklistItem(nil), c.Items...)
	}
	if c.Links != nil {
		out.Links = make(map[string]string, len(c.Links))
		for k, v := range c.Links {
			out.Links[k] = v
		}
	}
	return out
}
