package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/rcliao/chat-memory/internal/model"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.2"

// OllamaGenerator chats with a local Ollama server.
type OllamaGenerator struct {
	client      *ollama.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOllamaGenerator creates a generator. An empty BaseURL falls back to
// $OLLAMA_HOST, then localhost.
func NewOllamaGenerator(cfg Config) (*OllamaGenerator, error) {
	host := cfg.BaseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", host, err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}

	return &OllamaGenerator{
		client:      ollama.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, message string, history []model.Result) (string, error) {
	var msgs []ollama.Message
	for _, m := range Messages(message, history) {
		msgs = append(msgs, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": g.temperature,
			"num_predict": g.maxTokens,
		},
	}

	var text strings.Builder
	err := g.client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return text.String(), nil
}
