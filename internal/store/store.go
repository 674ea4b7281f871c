// Package store provides the per-user semantic memory store and its
// persistence backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/chat-memory/internal/model"
)

// Backend persists one unit per user: the user's full record sequence.
type Backend interface {
	// Name identifies the backend and its location for stats and logs.
	Name() string

	// Users lists every user with a persisted unit.
	Users(ctx context.Context) ([]string, error)

	// Load reads a user's records in insertion order.
	Load(ctx context.Context, userID string) ([]model.Record, error)

	// Save atomically replaces a user's unit. A failed Save leaves the
	// previous unit intact.
	Save(ctx context.Context, userID string, records []model.Record) error

	// Close closes the backend.
	Close() error
}

// Quarantiner is implemented by backends that can set aside a unit that
// failed to load, so the next Save does not overwrite it.
type Quarantiner interface {
	Quarantine(ctx context.Context, userID string) error
}

var (
	// ErrStorage matches every StorageError.
	ErrStorage = errors.New("storage error")
	// ErrEmbedding matches every EmbeddingError.
	ErrEmbedding = errors.New("embedding error")
	// ErrInvalidUser is returned for an empty user ID.
	ErrInvalidUser = errors.New("user id is required")
)

// StorageError is a durable read or write failure.
type StorageError struct {
	Op     string
	UserID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// EmbeddingError is an embedder failure or a vector of the wrong size.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
