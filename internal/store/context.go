package store

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/rcliao/chat-memory/internal/model"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	UserID string
	Query  string
	Limit  int // candidates to consider; default 20
	Budget int // max tokens in output (rough: 1 token ≈ 4 chars)
}

// ContextMemory is a scored exchange for context output.
type ContextMemory struct {
	Query     string  `json:"query"`
	Response  string  `json:"response"`
	Timestamp float64 `json:"timestamp"`
	Distance  float64 `json:"distance"`
	Score     float64 `json:"score"`
	Excerpt   bool    `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Results returns the packed memories as plain results, in packing order.
func (r *ContextResult) Results() []model.Result {
	out := make([]model.Result, len(r.Memories))
	for i, m := range r.Memories {
		out[i] = model.Result{Query: m.Query, Response: m.Response, Timestamp: m.Timestamp}
	}
	return out
}

// Context assembles the user's most relevant exchanges within a token
// budget.
func (s *MemoryStore) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 4000
	}
	charBudget := budget * 4

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	results, err := s.SearchScored(ctx, p.Query, p.UserID, limit)
	if err != nil {
		return nil, err
	}

	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	if len(results) == 0 {
		return result, nil
	}

	// Relevance decays with distance; recency halves roughly every week.
	now := s.now()
	type scored struct {
		r     SearchResult
		score float64
	}
	candidates := make([]scored, 0, len(results))
	for _, r := range results {
		relevance := 1 / (1 + r.Distance)
		age := now.Sub(r.Time()).Hours() / 24.0
		recency := math.Exp(-0.1 * max(age, 0))
		candidates = append(candidates, scored{r: r, score: relevance*0.7 + recency*0.3})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	for _, c := range candidates {
		m := ContextMemory{
			Query:     c.r.Query,
			Response:  c.r.Response,
			Timestamp: c.r.Timestamp,
			Distance:  c.r.Distance,
			Score:     math.Round(c.score*100) / 100,
		}
		size := len(m.Query) + len(m.Response)
		if used+size <= charBudget {
			result.Memories = append(result.Memories, m)
			used += size
			continue
		}

		remaining := charBudget - used
		if remaining < 100 {
			break
		}
		// Partial fit: keep the query whole when possible, trim the response.
		if len(m.Query) > remaining {
			m.Query = truncate(m.Query, remaining) + "..."
			m.Response = ""
		} else {
			m.Response = truncate(m.Response, remaining-len(m.Query)) + "..."
		}
		m.Excerpt = true
		result.Memories = append(result.Memories, m)
		used += len(m.Query) + len(m.Response)
		break
	}

	result.Used = used / 4
	return result, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
