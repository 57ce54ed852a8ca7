package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve <conflict-id> <strategy>",
	GroupID: "graph",
	Short:   "Resolve a pending relationship conflict",
	Long: `Apply a resolution to a conflict raised by 'mn relate':

  replace      rewrite the existing triple with the candidate's object
  retain_both  store the candidate alongside the existing triple
  reject       drop the candidate, keep the store unchanged

Conflicts expire an hour after detection.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		triple, err := sess.ResolveConflict(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"strategy": args[1], "triple": triple})
			return nil
		}
		if triple == nil {
			fmt.Printf("%s Candidate rejected; store unchanged\n", ui.RenderPass("✓"))
			return nil
		}
		fmt.Printf("%s Resolved via %s: %s -[%s]-> %s\n", ui.RenderPass("✓"), args[1],
			triple.Subject, triple.Predicate, triple.Object)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
