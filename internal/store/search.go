package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/rcliao/chat-memory/internal/model"
)

// SearchResult wraps a memory with its squared L2 distance to the query.
type SearchResult struct {
	model.Result
	Distance float64 `json:"distance"`
}

// Search returns up to limit of the user's memories closest to query,
// nearest first. Unknown or empty users yield an empty slice.
func (s *MemoryStore) Search(ctx context.Context, query, userID string, limit int) ([]model.Result, error) {
	scored, err := s.SearchScored(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	results := make([]model.Result, len(scored))
	for i, sr := range scored {
		results[i] = sr.Result
	}
	return results, nil
}

// SearchScored is Search with distances attached.
func (s *MemoryStore) SearchScored(ctx context.Context, query, userID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	us := s.user(userID, false)
	if us == nil || s.Count(userID) == 0 {
		return []SearchResult{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	us.mu.RLock()
	defer us.mu.RUnlock()

	hits, err := us.index.Search(vec, limit)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{Result: us.records[h.Row].Result(), Distance: h.Distance}
	}
	return results, nil
}

// Recent returns up to limit of the user's memories, newest first. Equal
// timestamps are ordered by reverse insertion.
func (s *MemoryStore) Recent(userID string, limit int) []model.Result {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	us := s.user(userID, false)
	if us == nil {
		return []model.Result{}
	}

	us.mu.RLock()
	defer us.mu.RUnlock()

	n := len(us.records)
	order := make([]int, n)
	for i := range order {
		order[i] = n - 1 - i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(us.records[b].Timestamp, us.records[a].Timestamp)
	})
	if len(order) > limit {
		order = order[:limit]
	}

	results := make([]model.Result, len(order))
	for i, row := range order {
		results[i] = us.records[row].Result()
	}
	return results
}
