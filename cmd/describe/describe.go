// Package describe implements the describe command.
package describe

import (
	"fmt"
	"io"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/renderer"
	"github.com/stokaro/formkit/dbschema"
)

const (
	dialectFlag = "dialect"
	ddlFlag     = "ddl"
)

var describeFlags = map[string]cobraflags.Flag{
	dialectFlag: &cobraflags.StringFlag{
		Name:  dialectFlag,
		Value: "",
		Usage: "Database dialect (postgres, mysql, mariadb). If empty, taken from the configuration",
	},
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(a *app.App) *cobra.Command {
	var ddl bool
	describeCmd := &cobra.Command{
		Use:   "describe [form...]",
		Short: "Print the SQL generated for forms",
		Long: `Print the fields and the SQL statements generated for the given forms, or
for every registered form when none is given. Statements are written with the
placeholders of the dialect. With --ddl the CREATE TABLE statements of the
forms and their children are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return describeCommand(cmd.OutOrStdout(), a, args, ddl)
		},
	}
	cobraflags.RegisterMap(describeCmd, describeFlags)
	describeCmd.Flags().BoolVar(&ddl, ddlFlag, false, "Print CREATE TABLE statements")
	return describeCmd
}

func describeCommand(w io.Writer, a *app.App, names []string, ddl bool) error {
	dialect := platform.NormalizeDialect(describeFlags[dialectFlag].GetString())
	if dialect == "" {
		dialect = dbschema.DialectOf(a.Config.Database)
	}
	if dialect == "" {
		dialect = platform.Postgres
	}

	var forms []*form.Form
	if len(names) == 0 {
		all, err := a.AllForms()
		if err != nil {
			return err
		}
		forms = all
	}
	for _, name := range names {
		f, err := a.Form(name)
		if err != nil {
			return err
		}
		forms = append(forms, f)
	}

	if ddl {
		sql, err := renderer.Schema(forms, dialect)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, sql)
		return err
	}
	for i, f := range forms {
		if i > 0 {
			fmt.Fprintln(w)
		}
		write(w, f, dialect)
	}
	return nil
}

func write(w io.Writer, f *form.Form, dialect string) {
	fmt.Fprintf(w, "-- form %s\n", f.ID())
	for _, field := range f.Fields() {
		fmt.Fprintf(w, "--   %-20s %-10s %s\n", field.Name(), field.DataType().Name(), field.Role())
	}
	for _, child := range f.Children() {
		fmt.Fprintf(w, "--   %-20s child %s\n", child.Name, child.Form.ID())
	}
	meta := f.DbMeta()
	if meta == nil {
		fmt.Fprintln(w, "-- not persisted")
		return
	}
	statements := []struct{ name, sql string }{
		{"select", meta.SelectClause + meta.WhereClause},
		{"select by unique key", uniqueSelect(meta)},
		{"insert", meta.InsertClause},
		{"update", meta.UpdateClause},
		{"delete", deleteStatement(meta)},
	}
	for _, s := range statements {
		if s.sql == "" {
			continue
		}
		fmt.Fprintf(w, "-- %s\n%s;\n", s.name, rdb.Rebind(dialect, s.sql))
	}
}

func uniqueSelect(meta *form.DbMeta) string {
	if meta.UniqueClause == "" {
		return ""
	}
	return meta.SelectClause + meta.UniqueClause
}

func deleteStatement(meta *form.DbMeta) string {
	if meta.DeleteClause == "" || meta.WhereClause == "" {
		return ""
	}
	return meta.DeleteClause + meta.WhereClause
}
