package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/hostedapi"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/sqlscript"
)

var errStatementsFailed = errors.New("some statements could not be applied")

type applyOptions struct {
	strategies  []string
	delay       time.Duration
	stopOnError bool
	manualOut   string
	dryRun      bool
}

func newApplyCmd(a *app) *cobra.Command {
	opts := &applyOptions{}
	cmd := &cobra.Command{
		Use:   "apply <file.sql>...",
		Short: "Replay SQL scripts statement by statement",
		Long: `Replay SQL scripts statement by statement.

Each statement is tried with the configured strategies in order. Objects
that already exist are reported as skipped. Failed statements are printed
as manual instructions, or written to --manual-out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strategy") && len(a.cfg.Migration.Strategies) > 0 {
				opts.strategies = a.cfg.Migration.Strategies
			}
			if !cmd.Flags().Changed("delay") {
				opts.delay = a.cfg.Migration.StatementDelay
			}
			if !cmd.Flags().Changed("stop-on-error") {
				opts.stopOnError = a.cfg.Migration.StopOnError
			}
			return a.runApply(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.strategies, "strategy", []string{"direct", "rpc"}, "Executors to try, in order: direct, rpc")
	f.DurationVar(&opts.delay, "delay", sqlscript.DefaultDelay, "Pause between statements; negative disables it")
	f.BoolVar(&opts.stopOnError, "stop-on-error", false, "Stop at the first failed statement")
	f.StringVar(&opts.manualOut, "manual-out", "", "Write manual instructions for failed statements to this file")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Only split the scripts and list their statements")
	return cmd
}

func (a *app) runApply(ctx context.Context, out io.Writer, opts *applyOptions, files []string) error {
	scripts := make([]*sqlscript.Script, 0, len(files))
	for _, path := range files {
		s, err := sqlscript.LoadScript(path)
		if err != nil {
			return err
		}
		scripts = append(scripts, s)
	}

	if opts.dryRun {
		for _, s := range scripts {
			printStatements(out, s)
		}
		return nil
	}

	executors, closeAll, err := a.buildExecutors(ctx, opts.strategies)
	if err != nil {
		return err
	}
	defer closeAll()

	replayer, err := sqlscript.NewReplayer(sqlscript.ReplayerConfig{
		Executors:   executors,
		Delay:       opts.delay,
		StopOnError: opts.stopOnError,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}

	var reports []*sqlscript.Report
	for _, s := range scripts {
		report, err := replayer.Run(ctx, s)
		if report != nil {
			reports = append(reports, report)
			fmt.Fprintln(out, report.Summary())
		}
		if err != nil {
			return err
		}
		if report.Aborted {
			break
		}
	}

	manual := sqlscript.ManualInstructions(reports, a.cfg.Migration.DashboardURL)
	if manual == "" {
		return nil
	}
	if opts.manualOut != "" {
		if err := os.WriteFile(opts.manualOut, []byte(manual), 0o644); err != nil {
			return fmt.Errorf("write manual instructions: %w", err)
		}
		a.log.Warn("Manual instructions written", zap.String("file", opts.manualOut))
	} else {
		fmt.Fprintln(out)
		fmt.Fprint(out, manual)
	}
	return errStatementsFailed
}

// buildExecutors resolves strategy names into executors. A strategy whose
// backend is not reachable or not configured is dropped with a warning; at
// least one must remain.
func (a *app) buildExecutors(ctx context.Context, strategies []string) ([]sqlscript.Executor, func(), error) {
	var (
		executors []sqlscript.Executor
		dbs       []*sql.DB
	)
	closeAll := func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	}

	for _, name := range strategies {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "direct":
			db, err := sqlscript.OpenDirect(ctx, a.cfg.Database.DSN())
			if err != nil {
				a.log.Warn("Direct connection unavailable", zap.Error(err))
				continue
			}
			dbs = append(dbs, db)
			executors = append(executors, sqlscript.NewDirectExecutor(db))
		case "rpc":
			client, err := a.hostedClient()
			if err != nil {
				a.log.Warn("RPC strategy unavailable", zap.Error(err))
				continue
			}
			executors = append(executors, hostedapi.NewRPCExecutor(client, a.cfg.Backend.RPCFunction))
		case "":
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown strategy %q (want direct or rpc)", name)
		}
	}

	if len(executors) == 0 {
		closeAll()
		return nil, nil, errors.New("no execution strategy is available; check database and backend settings")
	}
	return executors, closeAll, nil
}

func (a *app) hostedClient() (*hostedapi.Client, error) {
	return hostedapi.New(hostedapi.Config{
		BaseURL:    a.cfg.Backend.URL,
		APIKey:     a.cfg.Backend.AnonKey,
		ServiceKey: a.cfg.Backend.ServiceKey,
		Timeout:    a.cfg.Backend.Timeout,
	})
}

func printStatements(out io.Writer, s *sqlscript.Script) {
	fmt.Fprintf(out, "-- %s: %d statement(s)\n", s.Name, len(s.Statements))
	for _, st := range s.Statements {
		fmt.Fprintf(out, "\n-- #%d (line %d) %s\n%s;\n", st.Ordinal, st.Line, st.Kind(), st.Text)
	}
}

func newSplitCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <file.sql>",
		Short: "Print the statements of a SQL script as they would be replayed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sqlscript.LoadScript(args[0])
			if err != nil {
				return err
			}
			printStatements(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
