package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/migration"
)

// withMigrator opens the database and runs fn with a Migrator over the versioned migrations
func (a *app) withMigrator(fn func(m *migration.Migrator) error) error {
	db, err := sql.Open("postgres", a.cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, a.migrationsPath, a.log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func newVersionedCmds(a *app) []*cobra.Command {
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withMigrator(func(m *migration.Migrator) error { return m.Up() })
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withMigrator(func(m *migration.Migrator) error { return m.Down() })
		},
	}

	step := &cobra.Command{
		Use:   "step <n>",
		Short: "Apply n migrations (positive=up, negative=down)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return a.withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
		},
	}

	gotoCmd := &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return a.withMigrator(func(m *migration.Migrator) error { return m.GoTo(uint(v)) })
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m *migration.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if v == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m *migration.Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "version %d (dirty: %t), %d pending\n", st.Version, st.Dirty, len(st.Pending))
				for _, f := range st.Pending {
					fmt.Fprintf(out, "  - %s_%s\n", f.Version, f.Name)
				}
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Force set the migration version (use with caution)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return a.withMigrator(func(m *migration.Migrator) error { return m.Force(v) })
		},
	}

	var confirm bool
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop all database objects (DANGEROUS)",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if !confirm {
				return errors.New("drop cancelled; pass --confirm to drop every database object")
			}
			return a.withMigrator(func(m *migration.Migrator) error { return m.Drop() })
		},
	}
	drop.Flags().BoolVar(&confirm, "confirm", false, "Confirm dropping every database object")

	create := &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a new timestamped migration pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(a.migrationsPath, args[0], description)
			if err != nil {
				return err
			}
			a.log.Info("Migration created",
				zap.String("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := migration.ListMigrations(a.migrationsPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "no migrations found")
				return nil
			}
			for _, f := range files {
				fmt.Fprintf(out, "  - %s_%s\n", f.Version, f.Name)
			}
			return nil
		},
	}

	return []*cobra.Command{up, down, step, gotoCmd, version, status, force, drop, create, list}
}
