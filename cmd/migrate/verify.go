package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/sqlscript"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/verify"
)

var errSchemaIncomplete = errors.New("schema is missing objects")

func newVerifyCmd(a *app) *cobra.Command {
	var via string
	cmd := &cobra.Command{
		Use:   "verify <manifest.yaml>",
		Short: "Check that the tables, columns and functions of a manifest exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := verify.LoadManifest(args[0])
			if err != nil {
				return err
			}

			var prober verify.Prober
			switch via {
			case "sql":
				db, err := sqlscript.OpenDirect(cmd.Context(), a.cfg.Database.DSN())
				if err != nil {
					return err
				}
				defer db.Close()
				prober = verify.NewSQLProber(db)
			case "rest":
				client, err := a.hostedClient()
				if err != nil {
					return err
				}
				prober = verify.NewRESTProber(client)
			default:
				return fmt.Errorf("unknown prober %q (want sql or rest)", via)
			}

			report, err := verify.NewVerifier(prober, a.log).Verify(cmd.Context(), manifest)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			if !report.OK() {
				return errSchemaIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&via, "via", "sql", "How to inspect the schema: sql or rest")
	return cmd
}
