// Package llm generates assistant replies from a hosted or local model,
// using past exchanges as conversational context.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/chat-memory/internal/model"
)

// Generator produces a reply to message given prior exchanges.
type Generator interface {
	Generate(ctx context.Context, message string, history []model.Result) (string, error)
}

// Provider names.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// SystemPrompt is sent ahead of every conversation.
const SystemPrompt = "You are an AI Business Assistant that helps with customer inquiries, " +
	"scheduling meetings, and providing information. Be professional, " +
	"helpful, and concise in your responses."

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// Config selects and configures a provider.
type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DefaultConfig talks to Groq. Model is left empty so each provider
// applies its own default.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderGroq,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one provider-neutral chat turn.
type Message struct {
	Role    Role
	Content string
}

// Messages builds the conversation: the system prompt, each history item
// as a user/assistant pair in the order given, then message.
func Messages(message string, history []model.Result) []Message {
	msgs := make([]Message, 0, 2*len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: SystemPrompt})
	for _, h := range history {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: h.Query},
			Message{Role: RoleAssistant, Content: h.Response},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: message})
}

// New returns the generator for cfg.Provider. Zero temperature and max
// tokens fall back to the defaults.
func New(cfg Config) (Generator, error) {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGroq, "":
		return NewGroqGenerator(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	case ProviderOllama:
		return NewOllamaGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
