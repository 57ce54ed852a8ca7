package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	GroupID: "knowledge",
	Short:   "Soft-delete an entry or triple",
	Long: `Soft-delete a row. The row disappears from queries but stays in the
undo log; 'mn undo' restores it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, _ := cmd.Flags().GetString("type")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.Delete(cmd.Context(), args[0], entityType)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		fmt.Printf("%s Deleted %s %s (undo with 'mn undo')\n", ui.RenderPass("✓"), entityType, args[0])
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("type", "entry", "What to delete: entry or triple")
	rootCmd.AddCommand(deleteCmd)
}
