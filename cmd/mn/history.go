package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "knowledge",
	Short:   "Show the transaction log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entityType, _ := cmd.Flags().GetString("type")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		items, err := sess.History(cmd.Context(), limit, entityType)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"items": items, "count": len(items)})
			return nil
		}
		if len(items) == 0 {
			fmt.Println("No transactions recorded")
			return nil
		}
		fmt.Println(ui.RenderTransactionTable(items, ui.Width()))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum transactions to show")
	historyCmd.Flags().String("type", "", "Filter by entity type: entry, triple, canonical_entity")
	rootCmd.AddCommand(historyCmd)
}
