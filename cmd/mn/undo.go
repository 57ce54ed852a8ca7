package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var undoCmd = &cobra.Command{
	Use:     "undo",
	GroupID: "knowledge",
	Short:   "Revert recent mutations, newest first",
	Long: `Revert the most recent mutations: creates are removed, deletes are
restored, updates and merges roll back to their before state. Each undo
is itself logged, so the history stays complete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		reverted, err := sess.Undo(cmd.Context(), count)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"reverted": reverted})
			return nil
		}
		if len(reverted) == 0 {
			fmt.Println("Nothing to undo")
			return nil
		}
		for _, id := range reverted {
			fmt.Printf("%s Reverted transaction %s\n", ui.RenderPass("✓"), id)
		}
		return nil
	},
}

func init() {
	undoCmd.Flags().Int("count", 1, "How many mutations to revert")
	rootCmd.AddCommand(undoCmd)
}
