package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "knowledge",
	Short:   "Show one entry or triple",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asTriple, _ := cmd.Flags().GetBool("triple")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if asTriple {
			triple, err := sess.GetTriple(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(triple)
				return nil
			}
			fmt.Printf("%s -[%s]-> %s\n", triple.Subject, triple.Predicate, triple.Object)
			if triple.Source != nil {
				fmt.Printf("source: %s\n", *triple.Source)
			}
			if triple.Confidence != nil {
				fmt.Printf("confidence: %.2f\n", *triple.Confidence)
			}
			return nil
		}

		entry, err := sess.GetEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(entry)
			return nil
		}
		fmt.Println(ui.RenderEntryDetail(entry, ui.Width()))
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("triple", false, "Look up a triple instead of an entry")
	rootCmd.AddCommand(showCmd)
}
