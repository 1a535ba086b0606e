package dbschema

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/valuetype"
)

// Problem is a difference between a form and the table it is mapped on.
type Problem struct {
	Form   string `json:"form"`
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Issue  string `json:"issue"`
}

func (p Problem) String() string {
	if p.Column == "" {
		return fmt.Sprintf("%s: table %s %s", p.Form, p.Table, p.Issue)
	}
	return fmt.Sprintf("%s: column %s.%s %s", p.Form, p.Table, p.Column, p.Issue)
}

// columnTypes lists the information_schema data types accepted for each kind.
// Data types not listed for any kind are not checked.
var columnTypes = map[valuetype.Kind][]string{
	valuetype.Text:      {"character varying", "varchar", "character", "char", "text", "tinytext", "mediumtext", "longtext", "uuid", "citext", "enum"},
	valuetype.Integer:   {"smallint", "integer", "int", "bigint", "tinyint", "mediumint"},
	valuetype.Decimal:   {"numeric", "decimal", "real", "double precision", "double", "float"},
	valuetype.Boolean:   {"boolean", "bool", "bit", "tinyint"},
	valuetype.Date:      {"date"},
	valuetype.Timestamp: {"timestamp without time zone", "timestamp with time zone", "timestamp", "datetime"},
}

// Compatible reports whether a column of the given data type can hold values of kind k.
func Compatible(k valuetype.Kind, dataType string) bool {
	dataType = strings.ToLower(dataType)
	known := false
	for kind, names := range columnTypes {
		for _, n := range names {
			if n != dataType {
				continue
			}
			if kind == k {
				return true
			}
			known = true
		}
	}
	return !known
}

// Verify compares the persisted forms, children included, with the tables
// read by r. Forms without a table are skipped. A table shared by several
// forms is read once.
func Verify(ctx context.Context, r TableReader, forms []*form.Form) ([]Problem, error) {
	v := &verifier{reader: r, seen: map[string]bool{}}
	for _, f := range forms {
		if err := v.form(ctx, f); err != nil {
			return v.problems, err
		}
	}
	return v.problems, nil
}

type verifier struct {
	reader   TableReader
	seen     map[string]bool
	problems []Problem
}

func (v *verifier) form(ctx context.Context, f *form.Form) error {
	if v.seen[f.ID()] {
		return nil
	}
	v.seen[f.ID()] = true

	if meta := f.DbMeta(); meta != nil {
		table, ok, err := v.reader.ReadTable(ctx, meta.Table)
		if err != nil {
			return fmt.Errorf("failed to verify form %s: %w", f.ID(), err)
		}
		if !ok {
			v.problems = append(v.problems, Problem{Form: f.ID(), Table: meta.Table, Issue: "does not exist"})
		} else {
			for _, field := range f.Fields() {
				if !field.Role().IsPersisted() {
					continue
				}
				col, found := table.Column(field.Column())
				switch {
				case !found:
					v.problems = append(v.problems, Problem{Form: f.ID(), Table: meta.Table, Column: field.Column(), Issue: "does not exist"})
				case !Compatible(field.Kind(), col.DataType):
					v.problems = append(v.problems, Problem{
						Form:   f.ID(),
						Table:  meta.Table,
						Column: field.Column(),
						Issue:  fmt.Sprintf("is %s, field %s needs %s", col.DataType, field.Name(), field.Kind()),
					})
				}
			}
		}
	}
	for _, child := range f.Children() {
		if err := v.form(ctx, child.Form); err != nil {
			return err
		}
	}
	return nil
}
