package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcliao/chat-memory/internal/embedding"
	"github.com/rcliao/chat-memory/internal/index"
	"github.com/rcliao/chat-memory/internal/model"
)

const (
	DefaultSearchLimit = 5
	DefaultRecentLimit = 10
)

// MemoryStore owns every user's records and vector index. It is opened
// once per process and shared by reference.
//
// Writes rewrite the user's whole unit on every Add. That is O(n) per
// write in the user's history and is accepted for chat-sized stores.
type MemoryStore struct {
	backend  Backend
	embedder embedding.Embedder
	logger   *slog.Logger
	now      func() time.Time
	dims     atomic.Int64

	mu    sync.RWMutex
	users map[string]*userStore
}

// userStore holds one user's records and the index over their
// embeddings. records[i] is row i of index.
type userStore struct {
	mu      sync.RWMutex
	records []model.Record
	index   *index.Flat
	lastTS  float64
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) { s.logger = l }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// Open creates the registry and loads every persisted user. A user whose
// unit cannot be loaded starts empty; only a failure to list users is
// returned.
func Open(ctx context.Context, backend Backend, embedder embedding.Embedder, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default(),
		now:      time.Now,
		users:    make(map[string]*userStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dims.Store(int64(embedder.Dims()))

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load(ctx context.Context) error {
	ids, err := s.backend.Users(ctx)
	if err != nil {
		return &StorageError{Op: "list", Err: err}
	}

	records := 0
	for _, id := range ids {
		us, err := s.restore(ctx, id)
		if err != nil {
			s.logger.Error("failed to load memories, starting empty",
				"user", id, "backend", s.backend.Name(), "error", err)
			if q, ok := s.backend.(Quarantiner); ok {
				if qerr := q.Quarantine(ctx, id); qerr != nil {
					s.logger.Warn("failed to quarantine unit", "user", id, "error", qerr)
				}
			}
			us = s.newUserStore()
		}
		records += len(us.records)
		s.users[id] = us
	}

	s.logger.Info("memory store loaded",
		"backend", s.backend.Name(), "users", len(s.users), "records", records)
	return nil
}

// restore replays a persisted unit into a fresh index in file order.
func (s *MemoryStore) restore(ctx context.Context, userID string) (*userStore, error) {
	records, err := s.backend.Load(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "load", UserID: userID, Err: err}
	}

	// The unit is validated against its own index first. The store-wide
	// dimensionality is only fixed once the whole unit has been accepted.
	us := s.newUserStore()
	for i, r := range records {
		if err := us.index.Add(r.Embedding); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		us.lastTS = max(us.lastTS, r.Timestamp)
	}
	if len(records) > 0 {
		if err := s.fixDims(us.index.Dims()); err != nil {
			return nil, err
		}
	}
	us.records = records
	return us, nil
}

func (s *MemoryStore) newUserStore() *userStore {
	return &userStore{index: index.NewFlat(int(s.dims.Load()))}
}

// user returns the user's store, creating it when create is set.
func (s *MemoryStore) user(userID string, create bool) *userStore {
	s.mu.RLock()
	us, ok := s.users[userID]
	s.mu.RUnlock()
	if ok || !create {
		return us
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.users[userID]; ok {
		return us
	}
	us = s.newUserStore()
	s.users[userID] = us
	return us
}

// checkDims fixes the store dimensionality on first use when the
// embedder did not declare one, and rejects any other size afterwards.
func (s *MemoryStore) checkDims(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", index.ErrDimensionMismatch)
	}
	return s.fixDims(len(vec))
}

func (s *MemoryStore) fixDims(n int) error {
	if s.dims.Load() == 0 {
		s.dims.CompareAndSwap(0, int64(n))
	}
	if want := s.dims.Load(); int64(n) != want {
		return fmt.Errorf("expected %d dims, got %d: %w", want, n, index.ErrDimensionMismatch)
	}
	return nil
}

func (s *MemoryStore) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if err := s.checkDims(vec); err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	return vec, nil
}

// Add embeds query and appends the exchange to the user's memory. The
// unit is persisted before memory is touched, so a failed save leaves the
// store exactly as it was.
func (s *MemoryStore) Add(ctx context.Context, userID, query, response string) error {
	if userID == "" {
		return ErrInvalidUser
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return err
	}

	us := s.user(userID, true)
	us.mu.Lock()
	defer us.mu.Unlock()

	if d := us.index.Dims(); d != 0 && d != len(vec) {
		return &EmbeddingError{Err: fmt.Errorf("expected %d dims, got %d: %w", d, len(vec), index.ErrDimensionMismatch)}
	}

	rec := model.Record{
		Query:     query,
		Response:  response,
		Embedding: vec,
		Timestamp: max(model.UnixSeconds(s.now()), us.lastTS),
	}
	next := append(slices.Clip(us.records), rec)

	if err := s.backend.Save(ctx, userID, next); err != nil {
		return &StorageError{Op: "save", UserID: userID, Err: err}
	}
	if err := us.index.Add(vec); err != nil {
		return &EmbeddingError{Err: err}
	}
	us.records = next
	us.lastTS = rec.Timestamp

	s.logger.Debug("memory added", "user", userID, "records", len(next))
	return nil
}

// Users returns every known user ID, sorted.
func (s *MemoryStore) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of records for a user.
func (s *MemoryStore) Count(userID string) int {
	us := s.user(userID, false)
	if us == nil {
		return 0
	}
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.records)
}

// Dims returns the store dimensionality, or 0 if not yet known.
func (s *MemoryStore) Dims() int {
	return int(s.dims.Load())
}

// Close closes the backend, and the embedder if it holds resources.
func (s *MemoryStore) Close() error {
	if c, ok := s.embedder.(interface{ Close() }); ok {
		c.Close()
	}
	if err := s.backend.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}
