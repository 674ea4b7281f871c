// Package server exposes chat, scheduling and memory browsing over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/chat-memory/internal/calendar"
	"github.com/rcliao/chat-memory/internal/chat"
	"github.com/rcliao/chat-memory/internal/model"
)

// Chatter answers a user's message.
type Chatter interface {
	Chat(ctx context.Context, userID, message string) (*chat.Reply, error)
}

// MemoryReader reads a user's stored exchanges.
type MemoryReader interface {
	Search(ctx context.Context, query, userID string, limit int) ([]model.Result, error)
	Recent(userID string, limit int) []model.Result
}

// Authorizer runs the calendar OAuth flow.
type Authorizer interface {
	AuthURL(userID string) string
	// Exchange redeems an AuthURL state and returns the user it was issued to.
	Exchange(ctx context.Context, state, code string) (string, error)
}

// Server is the HTTP API server.
type Server struct {
	http       *http.Server
	chat       Chatter
	memory     MemoryReader
	scheduler  calendar.Scheduler
	authorizer Authorizer
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithScheduler enables POST /schedule-meeting.
func WithScheduler(sc calendar.Scheduler) Option {
	return func(s *Server) { s.scheduler = sc }
}

// WithAuthorizer enables the /google-auth routes.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) { s.authorizer = a }
}

// New creates a Server listening on addr.
func New(addr string, chatter Chatter, memory MemoryReader, opts ...Option) *Server {
	s := &Server{
		chat:   chatter,
		memory: memory,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.withLogging(withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start starts the server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server listening", "addr", ln.Addr().String(),
		"calendar", s.scheduler != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /schedule-meeting", s.handleScheduleMeeting)
	mux.HandleFunc("GET /memories/{user_id}", s.handleMemories)
	mux.HandleFunc("GET /google-auth", s.handleGoogleAuth)
	mux.HandleFunc("GET /google-auth/callback", s.handleGoogleCallback)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ulid.Make().String()
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
