// Package cli implements the chat-memory CLI commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/config"
	"github.com/rcliao/chat-memory/internal/embedding"
	"github.com/rcliao/chat-memory/internal/store"
)

var (
	configPath    string
	dataDir       string
	storageFlag   string
	dsnFlag       string
	embedProvider string
	logLevel      string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "chat-memory",
	Short: "Business assistant with per-user semantic memory",
	Long: "Chat with an LLM that remembers every exchange per user, schedule meetings, " +
		"and inspect the memory store from the command line.",
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (default: $CHAT_MEMORY_CONFIG)")
	pf.StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: $CHAT_MEMORY_DIR or ~/.chat-memory)")
	pf.StringVar(&storageFlag, "storage", "", "Storage backend: file, sqlite or postgres")
	pf.StringVar(&dsnFlag, "dsn", "", "SQLite path or Postgres connection string")
	pf.StringVar(&embedProvider, "embed-provider", "", "Embedding provider: hash, ollama or openai")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig layers flags over config.Load and installs the logger.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storageFlag != "" {
		cfg.Storage = storageFlag
	}
	if dsnFlag != "" {
		cfg.DSN = dsnFlag
	}
	if embedProvider != "" {
		cfg.Embedding.Provider = embedProvider
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		exitErr("invalid config", err)
	}

	lvl, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return cfg
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		return store.NewSQLiteBackend(cfg.SQLitePath())
	case config.StoragePostgres:
		return store.NewPostgresBackend(ctx, cfg.DSN)
	default:
		return store.NewFileBackend(cfg.MemoriesDir())
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.MemoryStore, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	s, err := store.Open(ctx, backend, embedder, store.WithLogger(slog.Default()))
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
