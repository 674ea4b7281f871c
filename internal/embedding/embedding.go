// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	// Dims is the output dimensionality, or 0 when the provider only
	// learns it from the first response.
	Dims() int
}

// ErrNotSupported is returned when a provider answers without a vector.
var ErrNotSupported = errors.New("embedding: provider returned no vector")

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dims      int    `yaml:"dims"`
	CacheSize int    `yaml:"cache_size"` // entries; 0 disables caching
}

// DefaultConfig returns the offline hash embedder with a small cache.
// Dims is left at 0 so each provider applies its own model default.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderHash,
		CacheSize: 4096,
	}
}

// New builds the embedder described by cfg.
func New(cfg Config) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "", ProviderHash:
		e = NewHashEmbedder(cfg.Dims)
	case ProviderOllama:
		oe, err := NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dims)
		if err != nil {
			return nil, err
		}
		e = oe
	case ProviderOpenAI:
		e = NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: hash, ollama, openai)", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		return cached, nil
	}
	return e, nil
}
