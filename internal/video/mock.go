package video

import (
	"context"
	"sync"
)

// MockSearcher is a test double for Searcher. Results and Errors are keyed
// by query; queries in neither map report no match.
type MockSearcher struct {
	Results map[string]Video
	Errors  map[string]error
	// Block lists queries that wait for ctx cancellation, simulating a hung
	// service. Queries not listed answer immediately.
	Block map[string]bool

	mu      sync.Mutex
	Queries []string
}

// NewMockSearcher returns a searcher that answers with the given videos.
func NewMockSearcher(results map[string]Video) *MockSearcher {
	return &MockSearcher{Results: results}
}

func (m *MockSearcher) Search(ctx context.Context, query string) (Video, bool, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if m.Block[query] {
		<-ctx.Done()
		return Video{}, false, ctx.Err()
	}
	if err := m.Errors[query]; err != nil {
		return Video{}, false, err
	}
	v, ok := m.Results[query]
	return v, ok, nil
}

// QueryCount returns how many searches were issued.
func (m *MockSearcher) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}
