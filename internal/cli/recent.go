package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List a user's latest exchanges",
		Run:   runRecent,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().Bool("queries-only", false, "Only output the queries, one per line")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runRecent(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	queriesOnly, _ := cmd.Flags().GetBool("queries-only")

	cfg := loadConfig()
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results := s.Recent(userID, limit)

	if queriesOnly {
		for _, r := range results {
			fmt.Println(r.Query)
		}
		return
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
