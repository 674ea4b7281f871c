package store

import (
	"cmp"
	"slices"
)

// Stats holds store statistics.
type Stats struct {
	Backend      string      `json:"backend"`
	Dims         int         `json:"dims"`
	TotalUsers   int         `json:"total_users"`
	TotalRecords int         `json:"total_records"`
	Users        []UserStats `json:"users"`
}

// UserStats holds per-user counts.
type UserStats struct {
	UserID string  `json:"user_id"`
	Count  int     `json:"count"`
	Newest float64 `json:"newest,omitempty"`
}

// Stats returns per-user record counts, largest first.
func (s *MemoryStore) Stats() *Stats {
	st := &Stats{
		Backend: s.backend.Name(),
		Dims:    s.Dims(),
		Users:   []UserStats{},
	}

	for _, id := range s.Users() {
		us := s.user(id, false)
		us.mu.RLock()
		u := UserStats{UserID: id, Count: len(us.records), Newest: us.lastTS}
		us.mu.RUnlock()

		st.TotalRecords += u.Count
		st.Users = append(st.Users, u)
	}
	st.TotalUsers = len(st.Users)

	slices.SortStableFunc(st.Users, func(a, b UserStats) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return st
}
