// Package renderer turns the tables of persisted forms into CREATE TABLE
// statements for PostgreSQL, MySQL and MariaDB.
package renderer

import (
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/ast"
	"github.com/stokaro/formkit/core/platform"
)

var _ ast.Visitor = (*Renderer)(nil)

// Renderer writes the SQL of the nodes it visits for one dialect.
type Renderer struct {
	dialect string
	w       strings.Builder
}

// New creates a renderer for dialect, one of the platform constants.
func New(dialect string) (*Renderer, error) {
	d := platform.NormalizeDialect(dialect)
	if d == "" {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Renderer{dialect: d}, nil
}

func (r *Renderer) Dialect() string {
	return r.dialect
}

func (r *Renderer) Reset() {
	r.w.Reset()
}

func (r *Renderer) Output() string {
	return r.w.String()
}

// Render renders an AST node to SQL and returns the result
func (r *Renderer) Render(node ast.Node) (string, error) {
	r.Reset()
	if err := node.Accept(r); err != nil {
		return "", err
	}
	return r.Output(), nil
}

func (r *Renderer) writeLinef(format string, args ...any) {
	fmt.Fprintf(&r.w, format, args...)
	r.w.WriteByte('\n')
}

func (r *Renderer) VisitCreateTable(node *ast.CreateTableNode) error {
	if len(node.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", node.Name)
	}
	if node.Comment != "" {
		r.writeLinef("-- %s", node.Comment)
	}
	r.writeLinef("CREATE TABLE %s (", node.Name)
	n := len(node.Columns) + len(node.Constraints)
	i := 0
	sep := func() {
		i++
		if i < n {
			r.w.WriteByte(',')
		}
		r.w.WriteByte('\n')
	}
	for _, col := range node.Columns {
		r.w.WriteString("    ")
		if err := col.Accept(r); err != nil {
			return err
		}
		sep()
	}
	for _, con := range node.Constraints {
		r.w.WriteString("    ")
		if err := con.Accept(r); err != nil {
			return err
		}
		sep()
	}
	r.writeLinef(");")
	return nil
}

// VisitColumn writes one column definition without separator.
func (r *Renderer) VisitColumn(node *ast.ColumnNode) error {
	if node.Type == "" {
		return fmt.Errorf("column %s has no type", node.Name)
	}
	typ := node.Type
	if node.AutoInc && r.dialect == platform.Postgres {
		switch strings.ToUpper(typ) {
		case "BIGINT":
			typ = "BIGSERIAL"
		case "INTEGER", "INT":
			typ = "SERIAL"
		}
	}
	r.w.WriteString(node.Name + " " + typ)
	if !node.Nullable {
		r.w.WriteString(" NOT NULL")
	}
	if node.AutoInc && r.dialect != platform.Postgres {
		r.w.WriteString(" AUTO_INCREMENT")
	}
	if d := node.Default; d != nil {
		if d.Expression != "" {
			r.w.WriteString(" DEFAULT " + d.Expression)
		} else {
			r.w.WriteString(" DEFAULT '" + strings.ReplaceAll(d.Value, "'", "''") + "'")
		}
	}
	if node.Comment != "" {
		if r.dialect == platform.Postgres {
			return nil
		}
		r.w.WriteString(" COMMENT '" + strings.ReplaceAll(node.Comment, "'", "''") + "'")
	}
	return nil
}

func (r *Renderer) VisitConstraint(node *ast.ConstraintNode) error {
	if len(node.Columns) == 0 {
		return fmt.Errorf("%s constraint has no columns", node.Type)
	}
	if node.Name != "" {
		r.w.WriteString("CONSTRAINT " + node.Name + " ")
	}
	r.w.WriteString(node.Type.String() + " (" + strings.Join(node.Columns, ", ") + ")")
	if node.Type != ast.ForeignKeyConstraint {
		return nil
	}
	ref := node.Reference
	if ref == nil || len(ref.Columns) != len(node.Columns) {
		return fmt.Errorf("foreign key %s needs one referenced column per column", node.Name)
	}
	r.w.WriteString(" REFERENCES " + ref.Table + " (" + strings.Join(ref.Columns, ", ") + ")")
	if ref.OnDelete != "" {
		r.w.WriteString(" ON DELETE " + ref.OnDelete)
	}
	return nil
}
