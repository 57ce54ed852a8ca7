package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/MnemoLog/internal/ui"
)

var entityCmd = &cobra.Command{
	Use:     "entity",
	GroupID: "graph",
	Short:   "Manage canonical entities and aliases",
}

var entityAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a canonical entity (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.UpsertEntity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		if res.Created {
			fmt.Printf("%s Created entity %s (%s)\n", ui.RenderPass("✓"), res.Entity.Name, res.Entity.ID)
		} else {
			fmt.Printf("%q already resolves to %s (%s)\n", args[0], res.Entity.Name, res.Entity.ID)
		}
		return nil
	},
}

var entityResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve a name to its canonical entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exactOnly, _ := cmd.Flags().GetBool("exact")

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		entity, err := sess.ResolveEntity(cmd.Context(), args[0], exactOnly)
		if err != nil {
			return err
		}
		if entity == nil {
			return fmt.Errorf("no entity resolves %q", args[0])
		}
		if jsonOutput {
			outputJSON(entity)
			return nil
		}
		fmt.Printf("%q -> %s (%s)\n", args[0], entity.Name, entity.ID)
		return nil
	},
}

var entityAliasCmd = &cobra.Command{
	Use:   "alias <entity-id> <alias>",
	Short: "Attach an alias to an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		alias, err := sess.AddAlias(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(alias)
			return nil
		}
		fmt.Printf("%s Aliased %q to entity %s\n", ui.RenderPass("✓"), alias.Alias, args[0])
		return nil
	},
}

var entityMergeCmd = &cobra.Command{
	Use:   "merge <keep-id> <merge-id>",
	Short: "Merge one entity into another",
	Long: `Absorb the merge entity into the keep entity: its aliases repoint,
triples mentioning its name are rewritten, and entries move over. The
merge is one transaction; 'mn undo' reverses it exactly.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.MergeEntities(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		fmt.Printf("%s Merged %s into %s (%d triples rewritten)\n",
			ui.RenderPass("✓"), args[1], args[0], res.MergedCount)
		return nil
	},
}

func init() {
	entityResolveCmd.Flags().Bool("exact", false, "Disable fuzzy substring matching")
	entityCmd.AddCommand(entityAddCmd, entityResolveCmd, entityAliasCmd, entityMergeCmd)
	rootCmd.AddCommand(entityCmd)
}
