// Package config loads chat-memory settings from defaults, an optional
// YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/chat-memory/internal/embedding"
	"github.com/rcliao/chat-memory/internal/llm"
)

// Storage drivers.
const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	Storage string `yaml:"storage"`
	DSN     string `yaml:"dsn"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ContextLimit   int    `yaml:"context_limit"`
	CredentialsDir string `yaml:"credentials_dir"`
	RedirectURL    string `yaml:"redirect_url"`
	LogLevel       string `yaml:"log_level"`

	Embedding embedding.Config `yaml:"embedding"`
	LLM       llm.Config       `yaml:"llm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:      filepath.Join(home, ".chat-memory"),
		Storage:      StorageFile,
		Host:         "0.0.0.0",
		Port:         8010,
		ContextLimit: 5,
		LogLevel:     "info",
		Embedding:    embedding.DefaultConfig(),
		LLM:          llm.DefaultConfig(),
	}
}

// Load builds the configuration. Layers, lowest first: defaults, the YAML
// file at path (or $CHAT_MEMORY_CONFIG), variables from ./.env, and the
// process environment. Variables already set in the environment win over
// .env. An empty path with no $CHAT_MEMORY_CONFIG skips the file layer.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CHAT_MEMORY_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString(&c.DataDir, "CHAT_MEMORY_DIR")
	setString(&c.Storage, "CHAT_MEMORY_STORAGE")
	setString(&c.DSN, "CHAT_MEMORY_DSN")
	setString(&c.Host, "API_HOST")
	if err := setInt(&c.Port, "API_PORT"); err != nil {
		return err
	}
	setString(&c.CredentialsDir, "GOOGLE_CREDENTIALS_DIR")
	setString(&c.LogLevel, "CHAT_MEMORY_LOG_LEVEL")

	setString(&c.Embedding.Provider, "CHAT_MEMORY_EMBED_PROVIDER")
	setString(&c.Embedding.Model, "CHAT_MEMORY_EMBED_MODEL")
	setString(&c.Embedding.BaseURL, "CHAT_MEMORY_EMBED_URL")
	if err := setInt(&c.Embedding.Dims, "CHAT_MEMORY_EMBED_DIMS"); err != nil {
		return err
	}

	setString(&c.LLM.Provider, "CHAT_MEMORY_LLM_PROVIDER")
	setString(&c.LLM.Model, "CHAT_MEMORY_LLM_MODEL")
	setString(&c.LLM.BaseURL, "CHAT_MEMORY_LLM_URL")

	c.resolveKeys()
	return nil
}

// resolveKeys picks the API key and host for the configured providers
// from the environment, when set there.
func (c *Config) resolveKeys() {
	fromEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	switch c.LLM.Provider {
	case llm.ProviderGroq, "":
		fromEnv(&c.LLM.APIKey, "GROQ_API_KEY")
	case llm.ProviderOpenAI:
		fromEnv(&c.LLM.APIKey, "OPENAI_API_KEY")
	case llm.ProviderAnthropic:
		fromEnv(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	case llm.ProviderOllama:
		if c.LLM.BaseURL == "" {
			fromEnv(&c.LLM.BaseURL, "OLLAMA_HOST")
		}
	}

	switch c.Embedding.Provider {
	case embedding.ProviderOpenAI:
		fromEnv(&c.Embedding.APIKey, "OPENAI_API_KEY")
	case embedding.ProviderOllama:
		if c.Embedding.BaseURL == "" {
			fromEnv(&c.Embedding.BaseURL, "OLLAMA_HOST")
		}
	}
}

// Validate rejects unknown drivers and providers and impossible values.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite:
	case StoragePostgres:
		if c.DSN == "" {
			return errors.New("postgres storage requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage %q (use file, sqlite or postgres)", c.Storage)
	}

	switch c.Embedding.Provider {
	case embedding.ProviderHash, embedding.ProviderOllama, embedding.ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dims < 0 {
		return fmt.Errorf("embedding dims must not be negative, got %d", c.Embedding.Dims)
	}

	switch c.LLM.Provider {
	case llm.ProviderGroq, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return lvl, nil
}

// Addr is the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MemoriesDir holds the file backend's units.
func (c *Config) MemoriesDir() string {
	return filepath.Join(c.DataDir, "memories")
}

// SQLitePath is the DSN when set, else memory.db in the data dir.
func (c *Config) SQLitePath() string {
	if c.DSN != "" {
		return c.DSN
	}
	return filepath.Join(c.DataDir, "memory.db")
}

// GoogleCredentialsDir defaults to credentials/ in the data dir.
func (c *Config) GoogleCredentialsDir() string {
	if c.CredentialsDir != "" {
		return c.CredentialsDir
	}
	return filepath.Join(c.DataDir, "credentials")
}
