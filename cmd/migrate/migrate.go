// Package migrate implements the migrate command.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/migration/migrator"
)

const dryRunFlag = "dry-run"

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(a *app.App) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the missing tables of persisted forms",
		Long: `Create the table of every persisted form that does not exist in the
configured database. Existing tables are left untouched; use verify to
compare their columns with the forms.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, err := cmd.Flags().GetBool(dryRunFlag)
			if err != nil {
				return err
			}
			if err := a.Connect(cmd.Context()); err != nil {
				return err
			}
			forms, err := a.AllForms()
			if err != nil {
				return err
			}
			m := migrator.NewMigrator(a.Driver).WithLogger(a.Logger)
			w := cmd.OutOrStdout()

			if dryRun {
				pending, _, err := m.Pending(cmd.Context(), forms)
				if err != nil {
					return err
				}
				for _, p := range pending {
					fmt.Fprintln(w, p.SQL)
				}
				if len(pending) == 0 {
					fmt.Fprintln(w, "-- no tables to create")
				}
				return nil
			}

			done, err := m.MigrateUp(cmd.Context(), forms)
			if err != nil {
				return err
			}
			for _, p := range done {
				fmt.Fprintf(w, "created %s\n", p.Table)
			}
			fmt.Fprintf(w, "%d tables created\n", len(done))
			return nil
		},
	}
	migrateCmd.Flags().Bool(dryRunFlag, false, "Print the statements without running them")
	return migrateCmd
}
