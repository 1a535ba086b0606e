package renderer

import (
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/ast"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/valuetype"
)

// Table builds the CREATE TABLE node of a persisted form. It returns nil for
// forms without a table.
func Table(f *form.Form, dialect string) *ast.CreateTableNode {
	meta := f.DbMeta()
	if meta == nil {
		return nil
	}
	dialect = platform.NormalizeDialect(dialect)
	table := ast.NewCreateTable(meta.Table)
	table.Comment = "form " + f.ID()

	var (
		keys   []string
		unique []string
	)
	for _, field := range f.Fields() {
		role := field.Role()
		if !role.IsPersisted() {
			continue
		}
		col := ast.NewColumn(field.Column(), columnType(field, dialect))
		caps := role.Capabilities()
		if caps.Required || field.Required() {
			col.SetNotNull()
		}
		if role == form.GeneratedPrimaryKey {
			col.SetAutoIncrement()
		}
		if caps.DBValue != "" {
			col.SetDefaultExpression(defaultExpression(caps.DBValue, dialect))
		}
		table.AddColumn(col)

		switch {
		case role.IsKey():
			keys = append(keys, field.Column())
		case role == form.UniqueKey:
			unique = append(unique, field.Column())
		}
	}
	if len(keys) > 0 {
		table.AddConstraint(ast.NewPrimaryKeyConstraint(keys...))
	}
	if len(unique) > 0 {
		if meta.TenantField != nil {
			unique = append([]string{meta.TenantField.Column()}, unique...)
		}
		table.AddConstraint(ast.NewUniqueConstraint("uk_"+meta.Table, unique...))
	}
	return table
}

// Tables returns the tables of forms and of their children. A parent table
// comes before the tables of its children, which reference it with a foreign
// key on their link columns. Forms sharing a table yield one table.
func Tables(forms []*form.Form, dialect string) []*ast.CreateTableNode {
	s := &schema{dialect: platform.NormalizeDialect(dialect), tables: map[string]*ast.CreateTableNode{}}
	linked := map[*form.Form]bool{}
	for _, f := range forms {
		if meta := f.DbMeta(); meta != nil {
			for _, link := range meta.Links {
				if link != nil {
					linked[link.Child] = true
				}
			}
		}
	}
	for _, f := range forms {
		if !linked[f] {
			s.add(f)
		}
	}
	for _, f := range forms {
		s.add(f)
	}
	return s.order
}

// Schema renders the statements of Tables.
func Schema(forms []*form.Form, dialect string) (string, error) {
	r, err := New(dialect)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for i, t := range Tables(forms, dialect) {
		sql, err := r.Render(t)
		if err != nil {
			return "", fmt.Errorf("failed to render table %s: %w", t.Name, err)
		}
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(sql)
	}
	return out.String(), nil
}

type schema struct {
	dialect string
	tables  map[string]*ast.CreateTableNode
	order   []*ast.CreateTableNode
}

func (s *schema) add(f *form.Form) *ast.CreateTableNode {
	meta := f.DbMeta()
	if meta == nil {
		return nil
	}
	if t, ok := s.tables[meta.Table]; ok {
		return t
	}
	t := Table(f, s.dialect)
	s.tables[meta.Table] = t
	s.order = append(s.order, t)

	for _, link := range meta.Links {
		if link == nil {
			continue
		}
		child := s.add(link.Child)
		if child == nil {
			continue
		}
		var childCols, parentCols []string
		for i, idx := range link.ChildIndexes {
			childCols = append(childCols, link.Child.Fields()[idx].Column())
			parentCols = append(parentCols, f.Fields()[link.ParentParams[i].Index].Column())
		}
		child.AddConstraint(ast.NewForeignKeyConstraint("fk_"+child.Name+"_"+t.Name, childCols,
			&ast.ForeignKeyRef{Table: t.Name, Columns: parentCols, OnDelete: "CASCADE"}))
	}
	return t
}

func columnType(field *form.Field, dialect string) string {
	postgres := dialect == platform.Postgres
	switch field.Kind() {
	case valuetype.Integer:
		return "BIGINT"
	case valuetype.Decimal:
		scale := 2
		if d, ok := field.DataType().(*datatype.Decimal); ok {
			scale = d.NbrDecimals()
		}
		if postgres {
			return fmt.Sprintf("NUMERIC(18, %d)", scale)
		}
		return fmt.Sprintf("DECIMAL(18, %d)", scale)
	case valuetype.Boolean:
		return "BOOLEAN"
	case valuetype.Date:
		return "DATE"
	case valuetype.Timestamp:
		if postgres {
			return "TIMESTAMP"
		}
		return "DATETIME(6)"
	}
	if t, ok := field.DataType().(*datatype.Text); ok && t.MaxLength() > 0 {
		return fmt.Sprintf("VARCHAR(%d)", t.MaxLength())
	}
	role := field.Role()
	if !postgres && (role.IsKey() || role == form.UniqueKey || role == form.TenantKey || role == form.ParentKey) {
		// MySQL cannot index TEXT columns without a prefix length.
		return "VARCHAR(255)"
	}
	return "TEXT"
}

func defaultExpression(expr, dialect string) string {
	if expr == "CURRENT_TIMESTAMP" && dialect != platform.Postgres {
		return "CURRENT_TIMESTAMP(6)"
	}
	return expr
}
