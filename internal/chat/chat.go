// Package chat answers user messages with a language model, grounding
// each reply in the user's earlier exchanges and remembering the result.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rcliao/chat-memory/internal/llm"
	"github.com/rcliao/chat-memory/internal/model"
)

// DefaultContextLimit is how many memories are retrieved per message.
const DefaultContextLimit = 5

// Memory is the slice of the memory store the chat service needs.
type Memory interface {
	Search(ctx context.Context, query, userID string, limit int) ([]model.Result, error)
	Add(ctx context.Context, userID, query, response string) error
}

// Reply is a generated response and the memories it was grounded in.
type Reply struct {
	Response string         `json:"response"`
	Memories []model.Result `json:"memories"`
}

// Service runs search, generate, remember.
type Service struct {
	memory    Memory
	generator llm.Generator
	limit     int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithContextLimit sets how many memories are retrieved per message.
func WithContextLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a chat service.
func NewService(memory Memory, generator llm.Generator, opts ...Option) *Service {
	s := &Service{
		memory:    memory,
		generator: generator,
		limit:     DefaultContextLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat replies to message. If generation fails nothing is stored. If the
// reply cannot be stored, it is returned together with the storage error.
func (s *Service) Chat(ctx context.Context, userID, message string) (*Reply, error) {
	memories, err := s.memory.Search(ctx, message, userID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	s.logger.Debug("retrieved memories", "user", userID, "count", len(memories))

	response, err := s.generator.Generate(ctx, message, memories)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	reply := &Reply{Response: response, Memories: memories}
	if err := s.memory.Add(ctx, userID, message, response); err != nil {
		return reply, fmt.Errorf("remember exchange: %w", err)
	}
	return reply, nil
}
