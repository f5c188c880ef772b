// Command abathur is the CLI surface over the task queue: task
// submission/inspection/pruning and the swarm worker pool, adapted from
// the teacher's cmd/bd (package-level store/jsonOutput globals, a
// signal-aware root context, FatalError-style error rendering).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/config"
	"github.com/odgrim/abathur-swarm/internal/logging"
	"github.com/odgrim/abathur-swarm/internal/queue"
	"github.com/odgrim/abathur-swarm/internal/resolver"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
)

var (
	dbPath     string
	configPath string
	jsonOutput bool
	verboseFlag bool
	readonlyMode bool

	cfg    *config.Config
	store  *sqlite.Store
	res    *resolver.Resolver
	queueSvc *queue.Service

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noStoreCommands don't need an open database: they either create one
// (init) or work before one necessarily exists.
var noStoreCommands = map[string]bool{
	"init":    true,
	"help":    true,
	"abathur": true,
}

var rootCmd = &cobra.Command{
	Use:   "abathur",
	Short: "abathur - dependency-aware task queue and swarm runner",
	Long:  `A persistent, priority-scheduled task queue with a bounded swarm worker pool.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if verboseFlag {
			logging.SetVerbose(true)
		}

		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.DBPath = dbPath
		}
		cfg = loaded

		if noStoreCommands[cmd.Name()] {
			return nil
		}

		s, err := sqlite.Open(rootCtx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening %s: %w (run 'abathur init' first)", cfg.DBPath, err)
		}
		store = s
		res = resolver.New(store)
		queueSvc = queue.New(store, res)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task queue:"},
		&cobra.Group{ID: "swarm", Title: "Swarm runner:"},
	)

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: "+config.KeyDBPath+" from config/env, or abathur.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to abathur.yaml/abathur.toml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of human-readable text")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable debug output (ABATHUR_DEBUG)")
	rootCmd.PersistentFlags().BoolVar(&readonlyMode, "readonly", false, "block write operations (submit, update, cancel, retry, prune)")

	rootCmd.AddCommand(taskCmd, swarmCmd, initCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalErrorRespectJSON("%v", err)
	}
	if rootCtx != nil && rootCtx.Err() == context.Canceled {
		os.Exit(130)
	}
	if rootCancel != nil {
		rootCancel()
	}
}
