package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/types"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var ingestCmd = &cobra.Command{
	Use:     "ingest [file]",
	GroupID: "knowledge",
	Short:   "Bulk-load a document into entries",
	Long: `Split a document into paragraph chunks and store each as an entry,
skipping exact duplicates. Small inputs complete synchronously; large
ones are queued and processed in batches (by the daemon when one is
running, inline otherwise). Check progress with 'mn task <task-id>'.

Reads the named file, or stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		sourceName := "stdin"
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			sourceName = args[0]
		} else {
			raw, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
		}

		var source *string
		if cmd.Flags().Changed("source") {
			s, _ := cmd.Flags().GetString("source")
			source = types.StrPtr(s)
		} else if sourceName != "stdin" {
			source = types.StrPtr(sourceName)
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.Ingest(cmd.Context(), string(raw), source)
		if err != nil {
			return err
		}

		if res.Async {
			if wait, _ := cmd.Flags().GetBool("wait"); wait && !sess.Daemon() {
				if err := sess.DrainIngestion(cmd.Context(), res.TaskID); err != nil {
					return err
				}
				task, err := sess.IngestionStatus(cmd.Context(), res.TaskID)
				if err != nil {
					return err
				}
				if jsonOutput {
					outputJSON(task)
					return nil
				}
				fmt.Printf("%s Ingested %d chunks (task %s)\n", ui.RenderPass("✓"),
					task.ProcessedItems, task.ID)
				return nil
			}
			if jsonOutput {
				outputJSON(res)
				return nil
			}
			fmt.Printf("%s Queued %d chunks as task %s\n", ui.RenderPass("✓"),
				res.TotalChunks, res.TaskID)
			fmt.Printf("Check progress: mn task %s\n", res.TaskID)
			return nil
		}

		if jsonOutput {
			outputJSON(res)
			return nil
		}
		fmt.Printf("%s Ingested %d entries (%d duplicates skipped)\n", ui.RenderPass("✓"),
			res.EntriesCreated, res.DuplicatesSkipped)
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:     "task <task-id>",
	GroupID: "knowledge",
	Short:   "Show an ingestion task's progress",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		task, err := sess.IngestionStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(task)
			return nil
		}
		fmt.Printf("Task %s: %s (%d/%d chunks)\n", task.ID, task.Status,
			task.ProcessedItems, task.TotalItems)
		if task.Error != nil {
			fmt.Printf("%s %s\n", ui.RenderFail("✗"), *task.Error)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source", "", "Provenance source for the created entries")
	ingestCmd.Flags().Bool("wait", false, "Process a queued task to completion before returning (direct mode)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(taskCmd)
}
