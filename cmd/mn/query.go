package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:     "query [terms...]",
	GroupID: "knowledge",
	Short:   "Search entries with hybrid retrieval",
	Long: `Search the knowledge base. Free terms match topics and content through
the lexical, semantic, and graph scorers; --tags filters the results.
With no terms the command lists entries matching the filters only.

Pagination is cursor-based: pass the next_cursor from the previous page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := engine.QueryParams{
			Content: strings.Join(args, " "),
		}
		params.Topic, _ = cmd.Flags().GetString("topic")
		params.Tags, _ = cmd.Flags().GetStringSlice("tags")
		params.Limit, _ = cmd.Flags().GetInt("limit")
		params.Cursor, _ = cmd.Flags().GetString("cursor")

		if cmd.Flags().Changed("weights") {
			raw, _ := cmd.Flags().GetFloat64Slice("weights")
			if len(raw) != 3 {
				return fmt.Errorf("--weights takes exactly three values: lexical,semantic,graph")
			}
			params.Weights = &retrieval.Weights{Lexical: raw[0], Semantic: raw[1], Graph: raw[2]}
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.Query(cmd.Context(), params)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(res)
			return nil
		}
		if len(res.Items) == 0 {
			fmt.Println("No entries found")
			return nil
		}
		fmt.Println(ui.RenderEntryTable(res.Items, ui.Width()))
		if res.NextCursor != "" {
			fmt.Printf("More results: --cursor %s\n", res.NextCursor)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().String("topic", "", "Match against entry topics")
	queryCmd.Flags().StringSlice("tags", nil, "Require all of these tags")
	queryCmd.Flags().Int("limit", 0, "Page size (default 20, max 200)")
	queryCmd.Flags().String("cursor", "", "Resume from a previous page")
	queryCmd.Flags().Float64Slice("weights", nil, "Scorer weights as lexical,semantic,graph")
	rootCmd.AddCommand(queryCmd)
}
