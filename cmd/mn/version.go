package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/rpc"
)

var (
	// Version is the current version of mn (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		checkDaemon, _ := cmd.Flags().GetBool("daemon")
		if checkDaemon {
			showDaemonVersion()
			return
		}

		commit := resolveCommitHash()
		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if commit != "" {
				result["commit"] = commit
			}
			outputJSON(result)
			return
		}
		if commit != "" {
			fmt.Printf("mn version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		} else {
			fmt.Printf("mn version %s (%s)\n", Version, Build)
		}
	},
}

func showDaemonVersion() {
	// PersistentPreRun skips version, so resolve the workspace here.
	_ = config.Initialize()
	if dbPath == "" {
		dbPath = config.DatabasePath()
	}

	rpc.ClientVersion = Version
	client, err := rpc.TryConnect(rpc.SocketPath(workspacePath()))
	if err != nil || client == nil {
		fmt.Fprintf(os.Stderr, "Error: daemon is not running\n")
		fmt.Fprintf(os.Stderr, "Hint: start the daemon with 'mn serve'\n")
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	var status rpc.StatusData
	if err := client.CallInto(rpc.OpStatus, nil, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error checking daemon: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(map[string]any{
			"daemon_version": status.Version,
			"client_version": Version,
			"daemon_uptime":  status.UptimeSeconds,
		})
		return
	}
	fmt.Printf("Daemon version: %s\n", status.Version)
	fmt.Printf("Client version: %s\n", Version)
	fmt.Printf("Daemon uptime: %ds\n", status.UptimeSeconds)
}

func init() {
	versionCmd.Flags().Bool("daemon", false, "Check daemon version and uptime")
	rootCmd.AddCommand(versionCmd)
}

func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
