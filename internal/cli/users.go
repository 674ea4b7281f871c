package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "User management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all users with stored memories",
		Run:   runUsersList,
	}

	usersCmd.AddCommand(listCmd)
	RootCmd.AddCommand(usersCmd)
}

func runUsersList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	type row struct {
		UserID string `json:"user_id"`
		Count  int    `json:"count"`
	}
	rows := []row{}
	for _, id := range s.Users() {
		rows = append(rows, row{UserID: id, Count: s.Count(id)})
	}

	b, _ := json.MarshalIndent(rows, "", "  ")
	fmt.Println(string(b))
}
