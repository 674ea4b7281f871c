package store

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContextBasic(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "u1", "book a demo", "Pick a slot.")
	mustAdd(t, s, "u1", "reset password", "Use the reset link.")
	mustAdd(t, s, "u1", "reset my account", "Contact support.")

	result, err := s.Context(ctx, ContextParams{
		UserID: "u1",
		Query:  "password reset",
		Budget: 4000,
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	if len(result.Memories) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(result.Memories))
	}
	if result.Budget != 4000 {
		t.Errorf("expected budget 4000, got %d", result.Budget)
	}
	if result.Memories[0].Query != "reset password" {
		t.Errorf("expected closest match first, got %q", result.Memories[0].Query)
	}
	if result.Memories[2].Query != "book a demo" {
		t.Errorf("expected farthest match last, got %q", result.Memories[2].Query)
	}

	results := result.Results()
	if len(results) != 3 || results[0].Response != "Use the reset link." {
		t.Errorf("unexpected results projection: %v", results)
	}
}

func TestContextBudgetLimit(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("Open settings, choose security, then reset. ", 50)
	mustAdd(t, s, "u1", "reset password", long)
	mustAdd(t, s, "u1", "reset my account", "Contact support.")

	result, err := s.Context(ctx, ContextParams{
		UserID: "u1",
		Query:  "password reset",
		Budget: 50, // ~200 chars
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	if len(result.Memories) != 1 {
		t.Fatalf("expected one excerpted memory, got %d", len(result.Memories))
	}
	m := result.Memories[0]
	if !m.Excerpt {
		t.Error("expected excerpt flag")
	}
	if m.Query != "reset password" {
		t.Errorf("excerpt should keep the query, got %q", m.Query)
	}
	if !strings.HasSuffix(m.Response, "...") || len(m.Response) >= len(long) {
		t.Errorf("expected truncated response, got %d chars", len(m.Response))
	}
	if result.Used > 50 {
		t.Errorf("used %d tokens, budget 50", result.Used)
	}
}

func TestContextExcerptKeepsRunes(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "u1", "reset password", "a"+strings.Repeat("€", 200))
	mustAdd(t, s, "u2", "reset password "+strings.Repeat("é", 150), "ok")

	for _, user := range []string{"u1", "u2"} {
		result, err := s.Context(ctx, ContextParams{UserID: user, Query: "password reset", Budget: 50})
		if err != nil {
			t.Fatalf("%s: context: %v", user, err)
		}
		if len(result.Memories) != 1 || !result.Memories[0].Excerpt {
			t.Fatalf("%s: expected one excerpt, got %+v", user, result.Memories)
		}
		m := result.Memories[0]
		if !utf8.ValidString(m.Query) || !utf8.ValidString(m.Response) {
			t.Errorf("%s: excerpt split a character: %q / %q", user, m.Query, m.Response)
		}
	}
}

func TestContextEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)

	result, err := s.Context(context.Background(), ContextParams{
		UserID: "nobody",
		Query:  "nothing here",
	})
	if err != nil {
		t.Fatalf("context: %v", err)
	}

	if len(result.Memories) != 0 {
		t.Errorf("expected empty memories, got %d", len(result.Memories))
	}
	if result.Budget != 4000 {
		t.Errorf("expected default budget 4000, got %d", result.Budget)
	}
}
