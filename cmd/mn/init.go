package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

// defaultConfig is the scaffolded .mnemo/config.yaml.
type defaultConfig struct {
	Actor string `yaml:"actor,omitempty"`
	Embed struct {
		Enabled bool   `yaml:"enabled"`
		Model   string `yaml:"model"`
	} `yaml:"embed"`
	Retrieval struct {
		WeightLexical  float64 `yaml:"weight-lexical"`
		WeightSemantic float64 `yaml:"weight-semantic"`
		WeightGraph    float64 `yaml:"weight-graph"`
	} `yaml:"retrieval"`
}

const defaultPolicyTOML = `# Guardrails applied before any mutation is written.
#
# required_fields lists the parameters that must be present and non-empty
# per operation. min_confidence rejects mutations whose confidence is
# below the floor (entries without a confidence pass).

min_confidence = 0.0

[required_fields]
store = ["topic", "content"]
relate = ["subject", "predicate", "object"]
`

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "admin",
	Short:   "Initialize a knowledge base in the current directory",
	Long: `Create a .mnemo directory with the database, a config.yaml, and a
policy.toml. Safe to re-run: existing files are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir := filepath.Join(cwd, config.DirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		configPath := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			cfg := defaultConfig{}
			cfg.Embed.Enabled = true
			cfg.Embed.Model = "nomic-embed-text"
			cfg.Retrieval.WeightLexical = 0.3
			cfg.Retrieval.WeightSemantic = 0.5
			cfg.Retrieval.WeightGraph = 0.2
			raw, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode default config: %w", err)
			}
			if err := os.WriteFile(configPath, raw, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", configPath, err)
			}
		}

		policyPath := filepath.Join(dir, "policy.toml")
		if _, err := os.Stat(policyPath); os.IsNotExist(err) {
			if err := os.WriteFile(policyPath, []byte(defaultPolicyTOML), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", policyPath, err)
			}
		}

		gitignorePath := filepath.Join(dir, ".gitignore")
		if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
			ignore := "mnemo.db\nmnemo.db-shm\nmnemo.db-wal\nmn.sock\nmn.lock\ndaemon.log*\n"
			if err := os.WriteFile(gitignorePath, []byte(ignore), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", gitignorePath, err)
			}
		}

		// Create the database so the first command does not race the schema.
		store, err := sqlite.New(context.Background(), filepath.Join(dir, "mnemo.db"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		_ = store.Close()

		if jsonOutput {
			outputJSON(map[string]string{"initialized": dir})
			return nil
		}
		fmt.Printf("%s Initialized knowledge base in %s\n", ui.RenderPass("✓"), dir)
		fmt.Println("Next: 'mn store <topic> <content>' or 'mn serve' for the daemon")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
