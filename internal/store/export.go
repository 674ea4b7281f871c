package store

import (
	"context"
	"maps"
	"slices"

	"github.com/rcliao/chat-memory/internal/model"
)

// Export returns every stored exchange without embeddings, keyed by user
// and in insertion order. An empty userID exports all users.
func (s *MemoryStore) Export(userID string) map[string][]model.Result {
	ids := s.Users()
	if userID != "" {
		ids = []string{userID}
	}

	out := make(map[string][]model.Result, len(ids))
	for _, id := range ids {
		us := s.user(id, false)
		if us == nil {
			continue
		}
		us.mu.RLock()
		results := make([]model.Result, len(us.records))
		for i, r := range us.records {
			results[i] = r.Result()
		}
		us.mu.RUnlock()
		out[id] = results
	}
	return out
}

// Import replays exported exchanges through Add. Timestamps are assigned
// fresh and every query is embedded again. Returns the number imported
// before any error.
func (s *MemoryStore) Import(ctx context.Context, data map[string][]model.Result) (int, error) {
	imported := 0
	for _, id := range slices.Sorted(maps.Keys(data)) {
		for _, r := range data[id] {
			if err := s.Add(ctx, id, r.Query, r.Response); err != nil {
				return imported, err
			}
			imported++
		}
	}
	return imported, nil
}
