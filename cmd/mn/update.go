package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "knowledge",
	Short:   "Update fields of an entry or triple",
	Long: `Apply a field overlay: --set changes fields, --clear nulls optional
ones, everything else is preserved.

  mn update 3f2a... --set topic="new title" --set confidence=0.9
  mn update 3f2a... --clear source
  mn update 9c1b... --triple --set object="4"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("set")
		clears, _ := cmd.Flags().GetStringSlice("clear")
		asTriple, _ := cmd.Flags().GetBool("triple")

		if len(sets) == 0 && len(clears) == 0 {
			return fmt.Errorf("nothing to update; pass --set or --clear")
		}

		updates := make(map[string]any, len(sets)+len(clears))
		for _, pair := range sets {
			key, raw, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("--set takes key=value, got %q", pair)
			}
			updates[key] = coerceValue(key, raw)
		}
		for _, key := range clears {
			updates[key] = nil
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if asTriple {
			triple, err := sess.UpdateTriple(cmd.Context(), args[0], updates)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(triple)
				return nil
			}
			fmt.Printf("%s Updated %s -[%s]-> %s\n", ui.RenderPass("✓"),
				triple.Subject, triple.Predicate, triple.Object)
			return nil
		}

		entry, err := sess.Update(cmd.Context(), args[0], updates)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(entry)
			return nil
		}
		fmt.Printf("%s Updated %s (%s)\n", ui.RenderPass("✓"), entry.Topic, entry.ID)
		return nil
	},
}

// coerceValue maps CLI strings onto the overlay types the storage layer
// expects: numbers for confidence, lists for tags, strings otherwise.
func coerceValue(key, raw string) any {
	switch key {
	case "confidence":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "tags":
		parts := strings.Split(raw, ",")
		tags := make([]any, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return raw
}

func init() {
	updateCmd.Flags().StringArray("set", nil, "Field assignment key=value (repeatable)")
	updateCmd.Flags().StringSlice("clear", nil, "Optional fields to null out")
	updateCmd.Flags().Bool("triple", false, "Update a triple instead of an entry")
	rootCmd.AddCommand(updateCmd)
}
