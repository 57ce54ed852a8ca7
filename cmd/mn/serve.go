package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/MnemoLog/internal/config"
	"github.com/untoldecay/MnemoLog/internal/embed"
	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/policy"
	"github.com/untoldecay/MnemoLog/internal/rpc"
	"github.com/untoldecay/MnemoLog/internal/storage/sqlite"
	"github.com/untoldecay/MnemoLog/internal/ui"
)

var serveForeground bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	GroupID: "admin",
	Short:   "Run the daemon on the workspace socket",
	Long: `Serve the knowledge base over a Unix socket so that concurrent mn
commands share one database handle. The daemon also drains queued
ingestion tasks in the background and reloads .mnemo/policy.toml when
it changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("no knowledge base found; run 'mn init' first")
		}

		logger := newDaemonLogger()
		store, err := sqlite.New(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		var opts []engine.Option
		if config.GetBool("embed.enabled") {
			embedder, err := embed.NewOllamaEmbedder(config.GetString("embed.model"))
			if err != nil {
				logger.Printf("embedding disabled: %v", err)
			} else {
				opts = append(opts, engine.WithEmbedding(embedder, embed.NewMemoryIndex()))
			}
		}

		rpc.ServerVersion = Version
		socketPath := rpc.SocketPath(workspacePath())
		server := rpc.NewServer(socketPath, dbPath, store, logger, opts...)

		watcher := watchPolicy(logger)
		if watcher != nil {
			defer watcher.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case <-server.Ready():
			logger.Printf("daemon ready on %s (version %s)", socketPath, Version)
			if !jsonOutput {
				fmt.Printf("%s Daemon listening on %s\n", ui.RenderPass("✓"), socketPath)
			}
		case err := <-errCh:
			return fmt.Errorf("daemon failed to start: %w", err)
		}

		select {
		case <-ctx.Done():
			logger.Printf("signal received, shutting down")
			server.Stop()
			<-errCh
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("daemon stopped: %w", err)
			}
		}
		_ = rpc.CleanupSocket(socketPath)
		return nil
	},
}

// newDaemonLogger writes to a rotating log file under .mnemo, and to
// stderr as well with --foreground.
func newDaemonLogger() *log.Logger {
	var out io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(filepath.Dir(dbPath), "daemon.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	if serveForeground {
		out = io.MultiWriter(out, os.Stderr)
	}
	return log.New(out, "", log.LstdFlags|log.Lmicroseconds)
}

// watchPolicy reloads the policy file whenever it changes. A missing
// watcher is not fatal; the daemon keeps the policy loaded at startup.
func watchPolicy(logger *log.Logger) *fsnotify.Watcher {
	policyPath := config.PolicyPath()
	if policyPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("policy watch unavailable: %v", err)
		return nil
	}
	// Watch the directory: editors often replace the file, which would
	// drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(policyPath)); err != nil {
		logger.Printf("policy watch unavailable: %v", err)
		_ = watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != policyPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := policy.LoadFile(policyPath); err != nil {
					logger.Printf("policy reload failed: %v", err)
					continue
				}
				logger.Printf("policy reloaded from %s", policyPath)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("policy watch error: %v", err)
			}
		}
	}()
	return watcher
}

var shutdownCmd = &cobra.Command{
	Use:     "shutdown",
	GroupID: "admin",
	Short:   "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		rpc.ClientVersion = Version
		client, err := rpc.TryConnect(rpc.SocketPath(workspacePath()))
		if err != nil || client == nil {
			return fmt.Errorf("daemon is not running")
		}
		defer client.Close()
		if err := client.Shutdown(); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]bool{"stopped": true})
			return nil
		}
		fmt.Printf("%s Daemon stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveForeground, "foreground", false, "Also log to stderr")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shutdownCmd)
}
