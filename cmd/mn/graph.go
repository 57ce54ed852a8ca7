package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:     "graph",
	GroupID: "graph",
	Short:   "Query relationship triples",
	Long: `List triples matching substring filters on subject, predicate, and
object. Filters combine with AND; no filters lists everything up to the
limit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter storage.TripleFilter
		filter.Subject, _ = cmd.Flags().GetString("subject")
		filter.Predicate, _ = cmd.Flags().GetString("predicate")
		filter.Object, _ = cmd.Flags().GetString("object")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		triples, err := sess.QueryGraph(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"items": triples, "count": len(triples)})
			return nil
		}
		if len(triples) == 0 {
			fmt.Println("No triples found")
			return nil
		}
		fmt.Println(ui.RenderTripleTable(triples, ui.Width()))
		return nil
	},
}

func init() {
	graphCmd.Flags().String("subject", "", "Subject substring")
	graphCmd.Flags().String("predicate", "", "Predicate substring")
	graphCmd.Flags().String("object", "", "Object substring")
	graphCmd.Flags().Int("limit", 0, "Maximum triples to return")
	rootCmd.AddCommand(graphCmd)
}
