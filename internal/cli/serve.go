package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/calendar"
	"github.com/rcliao/chat-memory/internal/chat"
	"github.com/rcliao/chat-memory/internal/llm"
	"github.com/rcliao/chat-memory/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve chat, meeting scheduling and memory browsing over HTTP. " +
			"Calendar routes are disabled when no Google client secret is found.",
		Run: runServe,
	}

	cmd.Flags().String("host", "", "Listen host (default from config)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (default from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	gen, err := llm.New(cfg.LLM)
	if err != nil {
		exitErr("create generator", err)
	}

	logger := slog.Default()
	svc := chat.NewService(s, gen,
		chat.WithContextLimit(cfg.ContextLimit),
		chat.WithLogger(logger),
	)

	opts := []server.Option{server.WithLogger(logger)}
	gcal, err := calendar.NewGoogle(cfg.GoogleCredentialsDir(), cfg.RedirectURL)
	if err != nil {
		logger.Warn("calendar disabled", "err", err)
	} else {
		opts = append(opts, server.WithScheduler(gcal), server.WithAuthorizer(gcal))
	}

	logger.Info("starting",
		"addr", cfg.Addr(),
		"storage", cfg.Storage,
		"users", len(s.Users()),
		"llm", cfg.LLM.Provider,
		"embedding", cfg.Embedding.Provider,
	)

	srv := server.New(cfg.Addr(), svc, s, opts...)
	if err := srv.Start(ctx); err != nil {
		exitErr("serve", err)
	}
}
