package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/policy"
	"github.com/untoldecay/MnemoLog/internal/types"
)

var (
	jsonOutput bool
	noDaemon   bool
	dbPath     string
	actorName  string
)

// Commands that must work outside a workspace and before config loads.
var preConfigCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "mn",
	Short: "Personal knowledge store with hybrid retrieval",
	Long: `mn stores typed knowledge entries, relationship triples, and canonical
entities in a local SQLite database, with a transactional undo log and
hybrid lexical/semantic/graph retrieval.

Commands talk to a running daemon ('mn serve') when one is listening on
the workspace socket, and fall back to opening the database directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if preConfigCommands[cmd.Name()] {
			return nil
		}
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if !cmd.Flags().Changed("no-daemon") {
			noDaemon = config.GetBool("no-daemon")
		}
		if dbPath == "" {
			dbPath = config.DatabasePath()
		}
		if actorName == "" {
			actorName = config.GetString("actor")
		}
		if path := config.PolicyPath(); path != "" {
			if _, err := os.Stat(path); err == nil {
				if err := policy.LoadFile(path); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "Bypass the daemon and open the database directly")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: nearest .mnemo/mnemo.db)")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", "", "Attribute mutations to this actor")

	rootCmd.AddGroup(
		&cobra.Group{ID: "knowledge", Title: "Knowledge:"},
		&cobra.Group{ID: "graph", Title: "Graph:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			outputJSON(map[string]any{
				"error":   string(types.KindOf(err)),
				"message": err.Error(),
			})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if types.Retryable(err) {
				fmt.Fprintln(os.Stderr, "Hint: this looks transient; retrying may succeed")
			}
		}
		os.Exit(1)
	}
}
