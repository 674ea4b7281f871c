package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/chat-memory/internal/embedding"
	"github.com/rcliao/chat-memory/internal/model"
)

// keywordEmbedder counts vocabulary words, one dimension per word.
type keywordEmbedder struct {
	vocab []string
	extra atomic.Int32 // zero dims appended, to provoke mismatches
	fail  atomic.Bool
	calls atomic.Int32
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"reset", "password", "account", "book", "demo"}}
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, errors.New("embedder down")
	}
	vec := make(embedding.Vector, len(e.vocab)+int(e.extra.Load()))
	for _, tok := range embedding.Tokenize(text) {
		for i, w := range e.vocab {
			if tok == w {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func (e *keywordEmbedder) Dims() int { return len(e.vocab) }

// tickingClock advances one second per call.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func openTestStore(t *testing.T, backend Backend, e embedding.Embedder, opts ...Option) *MemoryStore {
	t.Helper()
	s, err := Open(context.Background(), backend, e, append([]Option{WithClock(tickingClock())}, opts...)...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func newTestStore(t *testing.T) (*MemoryStore, *keywordEmbedder, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	e := newKeywordEmbedder()
	s := openTestStore(t, b, e)
	t.Cleanup(func() { s.Close() })
	return s, e, dir
}

func mustAdd(t *testing.T, s *MemoryStore, userID, query, response string) {
	t.Helper()
	if err := s.Add(context.Background(), userID, query, response); err != nil {
		t.Fatalf("add %q: %v", query, err)
	}
}

func queries(results []model.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Query
	}
	return out
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	mustAdd(t, s, "u1", "reset password", "Use the reset link.")
	mustAdd(t, s, "u1", "book a demo", "Pick a slot on the calendar.")
	mustAdd(t, s, "u1", "reset my account", "Contact support.")

	got, err := s.Search(ctx, "password reset", "u1", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []string{"reset password", "reset my account"}
	if !reflect.DeepEqual(queries(got), want) {
		t.Errorf("search = %v, want %v", queries(got), want)
	}
	if got[0].Response != "Use the reset link." {
		t.Errorf("unexpected response %q", got[0].Response)
	}

	recent := s.Recent("u1", 2)
	want = []string{"reset my account", "book a demo"}
	if !reflect.DeepEqual(queries(recent), want) {
		t.Errorf("recent = %v, want %v", queries(recent), want)
	}
}

func TestSearchScoredDistances(t *testing.T) {
	s, _, _ := newTestStore(t)
	mustAdd(t, s, "u1", "reset password", "")
	mustAdd(t, s, "u1", "book a demo", "")
	mustAdd(t, s, "u1", "reset my account", "")

	got, err := s.SearchScored(context.Background(), "password reset", "u1", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantDist := []float64{0, 2, 4}
	if len(got) != len(wantDist) {
		t.Fatalf("expected %d results, got %d", len(wantDist), len(got))
	}
	for i, d := range wantDist {
		if got[i].Distance != d {
			t.Errorf("result %d: distance %v, want %v", i, got[i].Distance, d)
		}
	}
}

func TestUnknownUser(t *testing.T) {
	s, e, _ := newTestStore(t)

	got, err := s.Search(context.Background(), "anything", "nobody", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	if e.calls.Load() != 0 {
		t.Errorf("search on unknown user should not embed, got %d calls", e.calls.Load())
	}

	recent := s.Recent("nobody", 5)
	if recent == nil || len(recent) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", recent)
	}
	if s.Count("nobody") != 0 {
		t.Error("expected zero count")
	}
}

func TestAddRequiresUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	err := s.Add(context.Background(), "", "q", "r")
	if !errors.Is(err, ErrInvalidUser) {
		t.Errorf("expected ErrInvalidUser, got %v", err)
	}
}

func TestSearchLimits(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	for i := 0; i < 7; i++ {
		mustAdd(t, s, "u1", fmt.Sprintf("demo %d", i), "")
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultSearchLimit},
		{"negative", -3, DefaultSearchLimit},
		{"exact", 2, 2},
		{"more than stored", 50, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, "demo", "u1", tt.limit)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d results, got %d", tt.want, len(got))
			}
		})
	}

	// All queries embed identically, so ties resolve by insertion order.
	got, _ := s.Search(ctx, "demo", "u1", 3)
	want := []string{"demo 0", "demo 1", "demo 2"}
	if !reflect.DeepEqual(queries(got), want) {
		t.Errorf("tie order = %v, want %v", queries(got), want)
	}
}

func TestRecentOrdering(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestStore(t, b, newKeywordEmbedder(), WithClock(func() time.Time { return fixed }))
	defer s.Close()

	for i := 0; i < 12; i++ {
		mustAdd(t, s, "u1", fmt.Sprintf("q%d", i), "")
	}

	got := s.Recent("u1", 0)
	if len(got) != DefaultRecentLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultRecentLimit, len(got))
	}
	if got[0].Query != "q11" || got[1].Query != "q10" {
		t.Errorf("equal timestamps should list newest inserted first, got %v", queries(got[:2]))
	}

	if all := s.Recent("u1", 100); len(all) != 12 {
		t.Errorf("expected all 12, got %d", len(all))
	}
}

func TestTimestampsMonotonic(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)

	// Clock runs backwards.
	var n atomic.Int64
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base.Add(-time.Duration(n.Add(1)) * time.Minute) }

	s := openTestStore(t, b, newKeywordEmbedder(), WithClock(clock))
	defer s.Close()

	for i := 0; i < 5; i++ {
		mustAdd(t, s, "u1", fmt.Sprintf("q%d", i), "")
	}

	got := s.Recent("u1", 5)
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp > got[i-1].Timestamp {
			t.Errorf("timestamps increase at %d: %v > %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
	if got[0].Query != "q4" {
		t.Errorf("expected latest insert first, got %q", got[0].Query)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	e := newKeywordEmbedder()

	s := openTestStore(t, b, e)
	mustAdd(t, s, "u1", "reset password", "a")
	mustAdd(t, s, "u1", "book a demo", "b")
	mustAdd(t, s, "u2", "reset my account", "c")
	wantSearch, _ := s.Search(ctx, "password reset", "u1", 5)
	wantRecent := s.Recent("u1", 5)
	s.Close()

	b2, _ := NewFileBackend(dir)
	s2 := openTestStore(t, b2, e)
	defer s2.Close()

	if !reflect.DeepEqual(s2.Users(), []string{"u1", "u2"}) {
		t.Errorf("users = %v", s2.Users())
	}
	gotSearch, err := s2.Search(ctx, "password reset", "u1", 5)
	if err != nil {
		t.Fatalf("search after reload: %v", err)
	}
	if !reflect.DeepEqual(gotSearch, wantSearch) {
		t.Errorf("search after reload = %v, want %v", gotSearch, wantSearch)
	}
	if got := s2.Recent("u1", 5); !reflect.DeepEqual(got, wantRecent) {
		t.Errorf("recent after reload = %v, want %v", got, wantRecent)
	}

	// New writes continue after the reloaded timestamps.
	mustAdd(t, s2, "u1", "demo again", "d")
	if got := s2.Recent("u1", 1); got[0].Query != "demo again" {
		t.Errorf("expected newest record first, got %q", got[0].Query)
	}
}

// flakyBackend fails Save while fail is set.
type flakyBackend struct {
	Backend
	fail atomic.Bool
}

func (b *flakyBackend) Save(ctx context.Context, userID string, records []model.Record) error {
	if b.fail.Load() {
		return errors.New("disk full")
	}
	return b.Backend.Save(ctx, userID, records)
}

func TestFailedSaveLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fb, _ := NewFileBackend(dir)
	b := &flakyBackend{Backend: fb}
	s := openTestStore(t, b, newKeywordEmbedder())
	defer s.Close()

	mustAdd(t, s, "u1", "reset password", "a")
	before, _ := s.Search(ctx, "reset", "u1", 10)

	b.fail.Store(true)
	err := s.Add(ctx, "u1", "book a demo", "b")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	var serr *StorageError
	if !errors.As(err, &serr) || serr.UserID != "u1" {
		t.Errorf("expected StorageError for u1, got %#v", err)
	}

	if s.Count("u1") != 1 {
		t.Errorf("expected 1 record after failed save, got %d", s.Count("u1"))
	}
	after, _ := s.Search(ctx, "reset", "u1", 10)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("search changed after failed save: %v vs %v", before, after)
	}

	// A brand-new user whose first save fails stays empty.
	if err := s.Add(ctx, "u2", "q", "r"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if s.Count("u2") != 0 {
		t.Error("expected no records for u2")
	}

	b.fail.Store(false)
	mustAdd(t, s, "u1", "book a demo", "b")
	if s.Count("u1") != 2 {
		t.Errorf("expected 2 records, got %d", s.Count("u1"))
	}
	got, _ := s.Search(ctx, "book demo", "u1", 1)
	if len(got) != 1 || got[0].Query != "book a demo" {
		t.Errorf("expected the retried record to be searchable, got %v", got)
	}
}

func TestEmbeddingFailureAbortsAdd(t *testing.T) {
	ctx := context.Background()
	s, e, dir := newTestStore(t)
	mustAdd(t, s, "u1", "reset password", "a")

	e.fail.Store(true)
	if err := s.Add(ctx, "u1", "book a demo", "b"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected embedding error on add, got %v", err)
	}
	if _, err := s.Search(ctx, "reset", "u1", 1); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected embedding error on search, got %v", err)
	}
	if s.Count("u1") != 1 {
		t.Errorf("expected 1 record, got %d", s.Count("u1"))
	}
	if err := s.Add(ctx, "u2", "book a demo", "b"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected embedding error for new user, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "u2.json")); !os.IsNotExist(err) {
		t.Error("no unit should be written for a failed add")
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, e, _ := newTestStore(t)
	mustAdd(t, s, "u1", "reset password", "a")

	e.extra.Store(1)
	err := s.Add(ctx, "u1", "book a demo", "b")
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected embedding error on add, got %v", err)
	}
	_, err = s.Search(ctx, "reset", "u1", 1)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected embedding error on search, got %v", err)
	}

	// A different user is held to the same dimensionality.
	if err := s.Add(ctx, "u2", "book a demo", "b"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected embedding error for u2, got %v", err)
	}
	if s.Count("u1") != 1 || s.Count("u2") != 0 {
		t.Errorf("counts changed: u1=%d u2=%d", s.Count("u1"), s.Count("u2"))
	}
}

func TestCorruptUnitIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, _ := NewFileBackend(dir)
	e := newKeywordEmbedder()

	s := openTestStore(t, b, e)
	mustAdd(t, s, "good", "reset password", "a")
	s.Close()

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	wrongDims := `[{"query":"q","response":"r","embedding":[1,2],"timestamp":1}]`
	if err := os.WriteFile(filepath.Join(dir, "short.json"), []byte(wrongDims), 0o644); err != nil {
		t.Fatal(err)
	}

	b2, _ := NewFileBackend(dir)
	s2 := openTestStore(t, b2, e)
	defer s2.Close()

	if s2.Count("good") != 1 {
		t.Errorf("expected good user to load, got %d records", s2.Count("good"))
	}
	for _, id := range []string{"bad", "short"} {
		if s2.Count(id) != 0 {
			t.Errorf("%s: expected empty store, got %d", id, s2.Count(id))
		}
	}

	corrupt, _ := filepath.Glob(filepath.Join(dir, "*.json.corrupt-*"))
	if len(corrupt) != 2 {
		t.Errorf("expected 2 quarantined units, got %v", corrupt)
	}

	mustAdd(t, s2, "bad", "book a demo", "b")
	got, err := s2.Search(ctx, "demo", "bad", 5)
	if err != nil || len(got) != 1 {
		t.Errorf("expected fresh store for bad user, got %v (%v)", got, err)
	}
}

// unsizedEmbedder reports no dimensionality until the first vector is seen.
type unsizedEmbedder struct{ *keywordEmbedder }

func (unsizedEmbedder) Dims() int { return 0 }

func TestMixedDimsUnitDoesNotFixDims(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	mixed := `[{"query":"q1","response":"r1","embedding":[1,2,3],"timestamp":1},` +
		`{"query":"q2","response":"r2","embedding":[1,2],"timestamp":2}]`
	if err := os.WriteFile(filepath.Join(dir, "alice.json"), []byte(mixed), 0o644); err != nil {
		t.Fatal(err)
	}

	b, _ := NewFileBackend(dir)
	s := openTestStore(t, b, unsizedEmbedder{newKeywordEmbedder()})
	defer s.Close()

	if s.Count("alice") != 0 {
		t.Errorf("expected alice to start empty, got %d", s.Count("alice"))
	}
	if s.Dims() != 0 {
		t.Errorf("rejected unit fixed store dims to %d", s.Dims())
	}

	if err := s.Add(ctx, "bob", "reset password", "ok"); err != nil {
		t.Fatalf("add for bob: %v", err)
	}
	if s.Dims() != 5 {
		t.Errorf("expected dims 5 after first add, got %d", s.Dims())
	}
	if err := s.Add(ctx, "alice", "book a demo", "ok"); err != nil {
		t.Errorf("add for alice: %v", err)
	}
}

func TestValidUnitFixesDims(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	unit := `[{"query":"q","response":"r","embedding":[1,0,0,0,0],"timestamp":1}]`
	if err := os.WriteFile(filepath.Join(dir, "alice.json"), []byte(unit), 0o644); err != nil {
		t.Fatal(err)
	}

	b, _ := NewFileBackend(dir)
	e := unsizedEmbedder{newKeywordEmbedder()}
	s := openTestStore(t, b, e)
	defer s.Close()

	if s.Count("alice") != 1 || s.Dims() != 5 {
		t.Fatalf("expected alice loaded with 5 dims, got count=%d dims=%d", s.Count("alice"), s.Dims())
	}

	e.extra.Store(1)
	if err := s.Add(ctx, "bob", "reset", "ok"); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding for 6-dim vector, got %v", err)
	}
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s, _, dir := newTestStore(t)

	users := []string{"a", "b", "c", "d"}
	const perUser = 25

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				if err := s.Add(ctx, u, fmt.Sprintf("reset %d", i), "ok"); err != nil {
					t.Errorf("add: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				if _, err := s.Search(ctx, "reset", u, 3); err != nil {
					t.Errorf("search: %v", err)
				}
				s.Recent(u, 3)
			}
		}()
	}
	wg.Wait()

	for _, u := range users {
		if s.Count(u) != perUser {
			t.Errorf("%s: expected %d records, got %d", u, perUser, s.Count(u))
		}
	}

	b2, _ := NewFileBackend(dir)
	s2 := openTestStore(t, b2, newKeywordEmbedder())
	defer s2.Close()
	for _, u := range users {
		if s2.Count(u) != perUser {
			t.Errorf("%s after reload: expected %d records, got %d", u, perUser, s2.Count(u))
		}
	}
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	mustAdd(t, s, "small", "book a demo", "a")
	mustAdd(t, s, "big", "reset password", "b")
	mustAdd(t, s, "big", "reset my account", "c")

	st := s.Stats()
	if st.TotalUsers != 2 || st.TotalRecords != 3 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.Dims != 5 {
		t.Errorf("expected 5 dims, got %d", st.Dims)
	}
	if st.Users[0].UserID != "big" || st.Users[0].Count != 2 {
		t.Errorf("expected big user first, got %+v", st.Users[0])
	}

	all := s.Export("")
	if len(all) != 2 || len(all["big"]) != 2 {
		t.Fatalf("unexpected export: %v", all)
	}
	if all["big"][0].Query != "reset password" {
		t.Errorf("export should keep insertion order, got %v", queries(all["big"]))
	}
	if one := s.Export("small"); len(one) != 1 {
		t.Errorf("expected one user, got %v", one)
	}

	s2, _, _ := newTestStore(t)
	n, err := s2.Import(ctx, all)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 imported, got %d", n)
	}
	got, _ := s2.Search(ctx, "password reset", "big", 1)
	if len(got) != 1 || got[0].Query != "reset password" {
		t.Errorf("imported records not searchable: %v", got)
	}
}
