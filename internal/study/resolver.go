package study

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-study/internal/video"
)

const (
	defaultLookupConcurrency = 4
	defaultLookupTimeout     = 10 * time.Second
)

// Resolution is the lookup outcome for one checklist item. URL is empty
// when no video was found or the lookup failed.
type Resolution struct {
	Item  string `json:"item"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Resolver finds a video link for each checklist item.
type Resolver struct {
	searcher    video.Searcher
	concurrency int
	timeout     time.Duration
}

// NewResolver creates a resolver. A nil searcher resolves every item to no
// link.
func NewResolver(searcher video.Searcher, concurrency int, timeout time.Duration) *Resolver {
	if concurrency <= 0 {
		concurrency = defaultLookupConcurrency
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Resolver{searcher: searcher, concurrency: concurrency, timeout: timeout}
}

// ResolveAll issues one lookup per item with bounded parallelism. The result
// has one entry per item in input order. Failed or timed out lookups are
// logged and leave that entry without a URL; they never stop the batch.
// onProgress, if set, is called after each lookup with the completed
// fraction, serially and in increasing order, ending at 1.
func (r *Resolver) ResolveAll(ctx context.Context, items []string, onProgress func(float64)) []Resolution {
	out := make([]Resolution, len(items))
	for i, item := range items {
		out[i].Item = item
	}
	if len(items) == 0 {
		return out
	}

	if r.searcher == nil {
		slog.Warn("no video searcher configured, skipping resource links", "items", len(items))
		if onProgress != nil {
			onProgress(1)
		}
		return out
	}

	ctx, span := tracer.Start(ctx, "resources.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if onProgress != nil {
			onProgress(float64(done) / float64(len(items)))
		}
	}

	// Lookups never return an error to the group so one failure cannot
	// cancel the others.
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, item := range items {
		g.Go(func() error {
			defer report()
			v, ok, err := r.lookup(ctx, item)
			if err != nil {
				slog.Warn("resource lookup failed", "error", &LookupError{Query: item, Err: err})
				return nil
			}
			if ok {
				out[i].URL = v.URL
				out[i].Title = v.Title
			}
			return nil
		})
	}
	_ = g.Wait()

	found := 0
	for _, res := range out {
		if res.URL != "" {
			found++
		}
	}
	span.SetAttributes(attribute.Int("found", found))
	return out
}

func (r *Resolver) lookup(ctx context.Context, item string) (video.Video, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.searcher.Search(ctx, item)
}

// LinkMap converts resolutions to an item → URL map holding only the items
// that have a link.
func LinkMap(res []Resolution) map[string]string {
	links := make(map[string]string, len(res))
	for _, r := range res {
		if r.URL != "" {
			links[r.Item] = r.URL
		}
	}
	return links
}
