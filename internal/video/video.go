// Package video looks up a representative video for a study topic.
package video

import "context"

// Video is a single search hit.
type Video struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Searcher finds the best matching video for a query. found is false when
// the service returned no match; err is reserved for service failures.
type Searcher interface {
	Search(ctx context.Context, query string) (v Video, found bool, err error)
}

// WatchURL returns the canonical YouTube watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
