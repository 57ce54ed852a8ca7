package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/rpc"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "admin",
	Short:   "Show store statistics and daemon state",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if sess.Daemon() {
			var status rpc.StatusData
			if err := sess.client.CallInto(rpc.OpStatus, nil, &status); err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(status)
				return nil
			}
			fmt.Printf("%s Daemon %s up %ds on %s\n", ui.RenderPass("●"),
				status.Version, status.UptimeSeconds, status.SocketPath)
			printCounts(status.Entries, status.Triples, status.Entities,
				status.Transactions, status.Undoable, status.Tasks, status.FTSEnabled)
			return nil
		}

		stats, err := sess.eng.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{
				"daemon":        false,
				"database_path": dbPath,
				"fts_enabled":   sess.store.FTSEnabled(),
				"stats":         stats,
			})
			return nil
		}
		fmt.Printf("%s No daemon; using %s directly\n", ui.RenderWarn("●"), dbPath)
		printCounts(stats.Entries, stats.Triples, stats.Entities,
			stats.Transactions, stats.Undoable, stats.Tasks, sess.store.FTSEnabled())
		return nil
	},
}

func printCounts(entries, triples, entities, transactions, undoable, tasks int, fts bool) {
	fmt.Printf("Entries:      %d\n", entries)
	fmt.Printf("Triples:      %d\n", triples)
	fmt.Printf("Entities:     %d\n", entities)
	fmt.Printf("Transactions: %d (%d undoable)\n", transactions, undoable)
	fmt.Printf("Tasks:        %d\n", tasks)
	if !fts {
		fmt.Printf("%s Full-text index unavailable; lexical search uses substring fallback\n",
			ui.RenderWarn("⚠"))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
