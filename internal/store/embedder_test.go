package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rcliao/chat-memory/internal/embedding"
)

func TestStoreLearnsProviderDims(t *testing.T) {
	const served = 3072
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "acme-embed-v1",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": make([]float32, served)},
			},
		})
	}))
	t.Cleanup(srv.Close)

	e, err := embedding.New(embedding.Config{
		Provider: embedding.ProviderOpenAI,
		BaseURL:  srv.URL,
		APIKey:   "k",
		Model:    "acme-embed-v1",
	})
	if err != nil {
		t.Fatalf("new embedder: %v", err)
	}

	b, _ := NewFileBackend(t.TempDir())
	s := openTestStore(t, b, e)
	defer s.Close()

	ctx := context.Background()
	if err := s.Add(ctx, "u1", "reset password", "ok"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.Dims() != served {
		t.Errorf("expected dims %d, got %d", served, s.Dims())
	}
	got, err := s.Search(ctx, "password", "u1", 5)
	if err != nil || len(got) != 1 {
		t.Errorf("expected one result, got %v (%v)", got, err)
	}
}
