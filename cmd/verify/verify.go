// Package verify implements the verify command.
package verify

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/dbschema"
)

const outputFlag = "output"

var verifyFlags = map[string]cobraflags.Flag{
	outputFlag: &cobraflags.StringFlag{
		Name:  outputFlag,
		Value: "text",
		Usage: "Output format (text, json)",
	},
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(a *app.App) *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the forms with the database schema",
		Long: `Check that the table of every persisted form exists in the configured
database, with a column of a compatible type for every persisted field.
The command fails when a difference is found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.Connect(cmd.Context()); err != nil {
				return err
			}
			forms, err := a.AllForms()
			if err != nil {
				return err
			}
			problems, err := dbschema.Verify(cmd.Context(), dbschema.NewReader(a.Driver), forms)
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), verifyFlags[outputFlag].GetString(), len(forms), problems)
		},
	}
	cobraflags.RegisterMap(verifyCmd, verifyFlags)
	return verifyCmd
}

func report(w io.Writer, output string, nbrForms int, problems []dbschema.Problem) error {
	switch output {
	case "json":
		if problems == nil {
			problems = []dbschema.Problem{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(problems); err != nil {
			return fmt.Errorf("failed to print problems: %w", err)
		}
	case "text":
		for _, p := range problems {
			fmt.Fprintln(w, p)
		}
		if len(problems) == 0 {
			fmt.Fprintf(w, "%d forms match the database\n", nbrForms)
		}
	default:
		return fmt.Errorf("unsupported output %q, use text or json", output)
	}
	if len(problems) > 0 {
		return fmt.Errorf("found %d schema problems", len(problems))
	}
	return nil
}
