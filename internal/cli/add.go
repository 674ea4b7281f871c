package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [query]",
		Short: "Store a chat exchange",
		Long:  "Store a query/response exchange for a user. The query can be a positional arg or piped via stdin.",
		Run:   runAdd,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().StringP("response", "r", "", "Assistant response")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	response, _ := cmd.Flags().GetString("response")

	// Get query: positional arg first, then check stdin
	var query string
	if len(args) > 0 {
		query = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			query = string(b)
		}
	}

	if strings.TrimSpace(query) == "" {
		exitErr("add", fmt.Errorf("query is required (positional arg or stdin)"))
	}

	cfg := loadConfig()
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Add(cmd.Context(), userID, strings.TrimSpace(query), response); err != nil {
		exitErr("add", err)
	}

	b, _ := json.Marshal(map[string]any{"ok": true, "user_id": userID, "count": s.Count(userID)})
	fmt.Println(string(b))
}
