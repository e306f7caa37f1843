// Command nexupay-migrate manages the NexuPay database schema. It replays
// plain SQL scripts statement by statement against the database or the
// hosted backend, verifies the resulting schema and drives the versioned
// migrations under migrations/.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/logger"
)

const defaultMigrationsPath = "migrations"

// app carries what every subcommand needs once the root command has run
type app struct {
	configPath     string
	migrationsPath string
	logLevel       string
	verbose        bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "nexupay-migrate",
		Short: "Apply and verify the NexuPay database schema",
		Long: `Apply and verify the NexuPay database schema.

Plain SQL scripts are split into statements and replayed one at a time,
first over a direct PostgreSQL connection and then through the hosted
backend's SQL function. Statements that fail everywhere are collected into
a paste-ready file for the dashboard SQL editor.

Versioned migrations (up, down, step, goto, ...) use golang-migrate.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Config file (default: ./config.toml)")
	f.StringVar(&a.migrationsPath, "path", "", "Path to versioned migrations directory (default: ./migrations)")
	f.StringVar(&a.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	root.AddCommand(
		newApplyCmd(a),
		newVerifyCmd(a),
		newSplitCmd(a),
	)
	root.AddCommand(newVersionedCmds(a)...)
	return root
}

func (a *app) init(*cobra.Command, []string) error {
	a.log = logger.NewCLI(a.logLevel, a.verbose)

	cfg, err := config.LoadFrom(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.migrationsPath == "" {
		a.migrationsPath = findMigrationsDir()
	}
	abs, err := filepath.Abs(a.migrationsPath)
	if err != nil {
		return err
	}
	a.migrationsPath = abs
	return nil
}

// findMigrationsDir looks next to the working directory first, then relative
// to the executable.
func findMigrationsDir() string {
	if _, err := os.Stat(defaultMigrationsPath); err == nil {
		return defaultMigrationsPath
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return defaultMigrationsPath
}
