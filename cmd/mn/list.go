package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/types"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var listCmd = &cobra.Command{
	Use:       "list <entries|triples|transactions>",
	GroupID:   "knowledge",
	Short:     "Page through a resource, newest first",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"entries", "triples", "transactions"},
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		page, err := sess.List(cmd.Context(), args[0], limit, cursor)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(page)
			return nil
		}
		if page.Count == 0 {
			fmt.Printf("No %s\n", args[0])
			return nil
		}

		if err := renderListPage(args[0], page.Items); err != nil {
			return err
		}
		if page.NextCursor != "" {
			fmt.Printf("More: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

// renderListPage re-decodes page items into their concrete type. Pages
// from the daemon arrive as raw JSON; direct pages marshal identically.
func renderListPage(resource string, items any) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	width := ui.Width()
	switch resource {
	case "entries":
		var entries []*types.Entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("failed to decode entries: %w", err)
		}
		t := ui.NewTable(width, "ID", "TOPIC", "TAGS", "CREATED")
		for _, e := range entries {
			t.Row(e.ID[:min(10, len(e.ID))], e.Topic, strings.Join(e.Tags, ","), e.CreatedAt)
		}
		fmt.Println(t.Render())
	case "triples":
		var triples []*types.Triple
		if err := json.Unmarshal(raw, &triples); err != nil {
			return fmt.Errorf("failed to decode triples: %w", err)
		}
		fmt.Println(ui.RenderTripleTable(triples, width))
	case "transactions":
		var txs []*types.Transaction
		if err := json.Unmarshal(raw, &txs); err != nil {
			return fmt.Errorf("failed to decode transactions: %w", err)
		}
		fmt.Println(ui.RenderTransactionTable(txs, width))
	}
	return nil
}

func init() {
	listCmd.Flags().Int("limit", 50, "Page size (max 200)")
	listCmd.Flags().String("cursor", "", "Resume from a previous page")
	rootCmd.AddCommand(listCmd)
}
