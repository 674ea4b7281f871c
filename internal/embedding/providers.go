package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
)

// Output sizes of models whose dimensionality is fixed. Any other model
// reports 0 and the store learns the size from the first vector.
var (
	ollamaModelDims = map[string]int{
		"nomic-embed-text":  768,
		"all-minilm":        384,
		"mxbai-embed-large": 1024,
	}
	openAIModelDims = map[string]int{
		string(openai.AdaEmbeddingV2):  1536,
		string(openai.SmallEmbedding3): 1536,
		string(openai.LargeEmbedding3): 3072,
	}
)

// --- Ollama Provider ---

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	client    *ollama.Client
	model     string
	dims      int
	truncated int // requested output size, 0 for the model's native size
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
// Default model: nomic-embed-text. A non-zero dims is requested from the
// server; otherwise Dims reports the known size of the model, or 0.
// An empty baseURL falls back to $OLLAMA_HOST, then localhost.
func NewOllamaEmbedder(baseURL, model string, dims int) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	known := ollamaModelDims[strings.TrimSuffix(model, ":latest")]
	e := &OllamaEmbedder{
		client:    ollama.NewClient(u, &http.Client{Timeout: 30 * time.Second}),
		model:     model,
		dims:      known,
		truncated: dims,
	}
	if dims > 0 {
		e.dims = dims
	}
	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	res, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model:      e.model,
		Input:      text,
		Dimensions: e.truncated,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, ErrNotSupported
	}
	return res.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

// --- OpenAI-compatible Provider ---

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dims      int
	truncated int
}

// NewOpenAIEmbedder creates an embedder using an OpenAI-compatible API.
// An empty apiKey falls back to $OPENAI_API_KEY. A non-zero dims is sent
// as the requested output size.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dims:      openAIModelDims[model],
		truncated: dims,
	}
	if dims > 0 {
		e.dims = dims
	}
	return e
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.truncated,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNotSupported
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }
