package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/rcliao/chat-memory/internal/model"
)

// Groq serves an OpenAI-compatible API.
const (
	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "qwen-qwq-32b"
)

// OpenAIGenerator calls any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewGroqGenerator points an OpenAIGenerator at Groq. An empty API key
// falls back to $GROQ_API_KEY.
func NewGroqGenerator(cfg Config) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = GroqModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GROQ_API_KEY")
	}
	return newOpenAIGenerator(cfg)
}

// NewOpenAIGenerator talks to OpenAI unless BaseURL says otherwise. An
// empty API key falls back to $OPENAI_API_KEY.
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return newOpenAIGenerator(cfg)
}

func newOpenAIGenerator(cfg Config) *OpenAIGenerator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, message string, history []model.Result) (string, error) {
	var msgs []openai.ChatCompletionMessage
	for _, m := range Messages(message, history) {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
