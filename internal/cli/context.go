package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/chat-memory/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Assemble a user's relevant exchanges for a message",
		Long:  "Search and score a user's exchanges, then greedily pack them into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().IntP("limit", "l", 20, "Candidates to consider")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in output")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	cfg := loadConfig()
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.Context(cmd.Context(), store.ContextParams{
		UserID: userID,
		Query:  query,
		Limit:  limit,
		Budget: budget,
	})
	if err != nil {
		exitErr("context", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
