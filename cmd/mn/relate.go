package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/types"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var relateCmd = &cobra.Command{
	Use:     "relate <subject> <predicate> <object>",
	GroupID: "graph",
	Short:   "Add a relationship triple",
	Long: `Add a subject-predicate-object triple to the graph. When an active
triple already relates the subject and predicate to a different object,
the command surfaces the contradiction instead of writing: pick a
resolution interactively, pass --resolve, or resolve later with
'mn resolve <conflict-id> <strategy>'.

With --upsert the existing triple's object is rewritten in place and no
conflict is raised.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cand := types.TripleCandidate{
			Subject:   args[0],
			Predicate: args[1],
			Object:    args[2],
		}
		if cmd.Flags().Changed("source") {
			source, _ := cmd.Flags().GetString("source")
			cand.Source = types.StrPtr(source)
		}
		if cmd.Flags().Changed("confidence") {
			conf, _ := cmd.Flags().GetFloat64("confidence")
			cand.Confidence = types.Float64Ptr(conf)
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if upsert, _ := cmd.Flags().GetBool("upsert"); upsert {
			res, err := sess.UpsertTriple(cmd.Context(), cand)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(res)
				return nil
			}
			verb := "Updated"
			if res.Created {
				verb = "Created"
			}
			fmt.Printf("%s %s %s -[%s]-> %s\n", ui.RenderPass("✓"), verb,
				res.Triple.Subject, res.Triple.Predicate, res.Triple.Object)
			return nil
		}

		res, err := sess.Relate(cmd.Context(), cand)
		if err != nil {
			return err
		}
		if res.Conflict == nil {
			if jsonOutput {
				outputJSON(res)
				return nil
			}
			fmt.Printf("%s Related %s -[%s]-> %s\n", ui.RenderPass("✓"),
				cand.Subject, cand.Predicate, cand.Object)
			return nil
		}

		return handleConflict(cmd, sess, res.Conflict)
	},
}

// handleConflict resolves a detected contradiction, interactively when
// possible.
func handleConflict(cmd *cobra.Command, sess *session, info *types.ConflictInfo) error {
	strategy, _ := cmd.Flags().GetString("resolve")

	if strategy == "" && !jsonOutput && ui.IsTerminal() {
		picked, err := pickResolution(info)
		if err != nil {
			return err
		}
		strategy = picked
	}

	if strategy == "" {
		// Non-interactive: report the conflict for a later resolve.
		if jsonOutput {
			outputJSON(info)
			return nil
		}
		fmt.Printf("%s Conflict: %s -[%s]-> %s already exists (wanted %q)\n",
			ui.RenderWarn("⚠"), info.Subject, info.Predicate, info.Existing.Object,
			info.Candidate.Object)
		fmt.Printf("Resolve within the hour: mn resolve %s <%s>\n",
			info.ConflictID, "replace|retain_both|reject")
		return nil
	}

	triple, err := sess.ResolveConflict(cmd.Context(), info.ConflictID, strategy)
	if err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(map[string]any{"strategy": strategy, "triple": triple})
		return nil
	}
	switch strategy {
	case types.ResolutionReject:
		fmt.Printf("%s Candidate rejected; %q kept\n", ui.RenderPass("✓"), info.Existing.Object)
	default:
		fmt.Printf("%s Resolved via %s: %s -[%s]-> %s\n", ui.RenderPass("✓"), strategy,
			triple.Subject, triple.Predicate, triple.Object)
	}
	return nil
}

func pickResolution(info *types.ConflictInfo) (string, error) {
	var strategy string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("%s -[%s]-> ?", info.Subject, info.Predicate)).
			Description(fmt.Sprintf("existing: %q  candidate: %q",
				info.Existing.Object, info.Candidate.Object)).
			Options(
				huh.NewOption(fmt.Sprintf("Replace with %q", info.Candidate.Object), types.ResolutionReplace),
				huh.NewOption("Keep both", types.ResolutionRetainBoth),
				huh.NewOption(fmt.Sprintf("Keep %q, drop the candidate", info.Existing.Object), types.ResolutionReject),
			).
			Value(&strategy),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("resolution cancelled: %w", err)
	}
	return strategy, nil
}

func init() {
	relateCmd.Flags().String("source", "", "Provenance source")
	relateCmd.Flags().Float64("confidence", 0, "Confidence in [0,1]")
	relateCmd.Flags().String("resolve", "", "Resolve a conflict non-interactively: replace, retain_both, or reject")
	relateCmd.Flags().Bool("upsert", false, "Rewrite the existing triple instead of raising a conflict")
	rootCmd.AddCommand(relateCmd)
}
