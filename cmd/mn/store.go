package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/types"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var storeCmd = &cobra.Command{
	Use:     "store <topic> [content]",
	GroupID: "knowledge",
	Short:   "Store a knowledge entry",
	Long: `Store a typed knowledge entry. Content can be given as the second
argument, with --content, or piped on stdin when the argument is '-'.

Validity bounds accept natural language:
  mn store "team offsite" "Lisbon" --valid-from "next monday" --valid-to "in 2 weeks"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]
		content, _ := cmd.Flags().GetString("content")
		if len(args) == 2 {
			if args[1] == "-" {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = string(raw)
			} else {
				content = args[1]
			}
		}

		params := engine.StoreParams{Topic: topic, Content: content}
		params.Tags, _ = cmd.Flags().GetStringSlice("tags")
		if cmd.Flags().Changed("source") {
			source, _ := cmd.Flags().GetString("source")
			params.Source = types.StrPtr(source)
		}
		if cmd.Flags().Changed("confidence") {
			conf, _ := cmd.Flags().GetFloat64("confidence")
			params.Confidence = types.Float64Ptr(conf)
		}
		if cmd.Flags().Changed("valid-from") {
			raw, _ := cmd.Flags().GetString("valid-from")
			ts, err := parseWhen(raw)
			if err != nil {
				return err
			}
			params.ValidFrom = types.StrPtr(ts)
		}
		if cmd.Flags().Changed("valid-to") {
			raw, _ := cmd.Flags().GetString("valid-to")
			ts, err := parseWhen(raw)
			if err != nil {
				return err
			}
			params.ValidTo = types.StrPtr(ts)
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		entry, err := sess.Store(cmd.Context(), params)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(entry)
			return nil
		}
		fmt.Printf("%s Stored %s (%s)\n", ui.RenderPass("✓"), entry.Topic, entry.ID)
		return nil
	},
}

// parseWhen accepts RFC 3339 timestamps and natural-language dates.
func parseWhen(raw string) (string, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC().Format(time.RFC3339), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(raw, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", raw, err)
	}
	if result == nil {
		return "", fmt.Errorf("could not understand date %q; use RFC 3339 or natural language", raw)
	}
	return result.Time.UTC().Format(time.RFC3339), nil
}

func init() {
	storeCmd.Flags().String("content", "", "Entry content (alternative to the positional argument)")
	storeCmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	storeCmd.Flags().String("source", "", "Provenance source, e.g. a URL or document name")
	storeCmd.Flags().Float64("confidence", 0, "Confidence in [0,1]")
	storeCmd.Flags().String("valid-from", "", "Validity start (RFC 3339 or natural language)")
	storeCmd.Flags().String("valid-to", "", "Validity end (RFC 3339 or natural language)")
	rootCmd.AddCommand(storeCmd)
}
