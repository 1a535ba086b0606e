// Package filter translates filter requests into parameterized SELECT
// statements over a form's table and runs them.
//
// A request either builds completely or not at all: an unknown field, a
// malformed condition or a value that does not parse yields a single
// InvalidData message and no SQL.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
)

// DefaultMaxRows caps a filter that names no limit.
const DefaultMaxRows = 1000

// Query is a built filter statement.
type Query struct {
	SQL     string
	Params  []rdb.Param
	MaxRows int
}

// Builder builds filter queries for one dialect.
type Builder struct {
	dialect string
	maxRows int
	logger  *slog.Logger
}

// NewBuilder returns a builder for dialect. maxRows is used when a request
// gives no limit; zero or less means DefaultMaxRows.
func NewBuilder(dialect string, maxRows int) *Builder {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Builder{
		dialect: dialect,
		maxRows: maxRows,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the builder
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	tmp := *b
	tmp.logger = l
	return &tmp
}

// Build turns req into a query over the table of f. When the form has a tenant
// field, a condition on tenant comes first regardless of the request.
func (b *Builder) Build(f *form.Form, req *Request, tenant any) (*Query, *message.Message) {
	meta := f.DbMeta()
	if meta == nil {
		b.logger.Error("Filter requested on a form without a table", "form", f.ID())
		return nil, invalid()
	}

	for name := range req.Conditions {
		if _, ok := f.Field(name); !ok {
			b.logger.Error("Filter condition on a field that is not part of the form", "form", f.ID(), "field", name)
			return nil, invalid()
		}
	}

	var (
		conds  []string
		params []rdb.Param
	)
	if tf := meta.TenantField; tf != nil {
		conds = append(conds, tf.Column()+" = ?")
		params = append(params, rdb.Param{Name: tf.Name(), Kind: tf.Kind(), Value: tenant})
	}

	// conditions follow the field order of the form so the same request always
	// yields the same statement
	for _, field := range f.Fields() {
		cond, ok := req.Conditions[field.Name()]
		if !ok {
			continue
		}
		sql, ps, err := b.condition(field, cond)
		if err != nil {
			b.logger.Error("Invalid filter condition", "form", f.ID(), "field", field.Name(), "error", err)
			return nil, invalid()
		}
		conds = append(conds, sql)
		params = append(params, ps...)
	}

	var sb strings.Builder
	sb.WriteString(meta.SelectClause)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	first := true
	for _, s := range req.Sort {
		field, ok := f.Field(s.Field)
		if !ok || !field.Role().IsPersisted() {
			b.logger.Warn("Sort on a field that is not a column of the form, ignored", "form", f.ID(), "field", s.Field)
			continue
		}
		if first {
			sb.WriteString(" ORDER BY ")
			first = false
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(field.Column())
		if s.Descending {
			sb.WriteString(" DESC")
		}
	}

	q := &Query{SQL: sb.String(), Params: params, MaxRows: req.MaxRows}
	if q.MaxRows <= 0 {
		q.MaxRows = b.maxRows
	}
	b.logger.Debug("Filter built", "form", f.ID(), "sql", q.SQL, "params", len(q.Params))
	return q, nil
}

func (b *Builder) condition(field *form.Field, cond Condition) (string, []rdb.Param, error) {
	if !field.Role().IsPersisted() {
		return "", nil, fmt.Errorf("field %s is not a column", field.Name())
	}
	if !cond.hasValue {
		return "", nil, fmt.Errorf("condition has no value")
	}
	col := field.Column()
	kind := field.Kind()
	param := func(v any) rdb.Param {
		return rdb.Param{Name: field.Name(), Kind: kind, Value: v}
	}

	comp := cond.Comp
	if comp == "" {
		comp = OpEqual
	}
	switch comp {
	case OpContains, OpStartsWith:
		if kind != valuetype.Text {
			return "", nil, fmt.Errorf("%s is not valid for a %s field", comp, kind)
		}
		pattern := EscapeLike(cond.Value) + "%"
		if comp == OpContains {
			pattern = "%" + pattern
		}
		return col + " LIKE ?" + platform.LikeEscape(b.dialect), []rdb.Param{param(pattern)}, nil

	case OpIn:
		parts := strings.Split(cond.Value, ",")
		ps := make([]rdb.Param, len(parts))
		for i, part := range parts {
			v, err := parse(kind, strings.TrimSpace(part))
			if err != nil {
				return "", nil, err
			}
			ps[i] = param(v)
		}
		return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(parts)), ",") + ")", ps, nil

	case OpBetween:
		if !cond.hasValueTo {
			return "", nil, fmt.Errorf("between needs valueTo")
		}
		from, err := parse(kind, cond.Value)
		if err != nil {
			return "", nil, err
		}
		to, err := parse(kind, cond.ValueTo)
		if err != nil {
			return "", nil, err
		}
		return col + " BETWEEN ? AND ?", []rdb.Param{param(from), param(to)}, nil

	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		v, err := parse(kind, cond.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " " + comp + " ?", []rdb.Param{param(v)}, nil
	}
	return "", nil, fmt.Errorf("%q is not a filter operator", comp)
}

func parse(kind valuetype.Kind, s string) (any, error) {
	v, ok := kind.Parse(s)
	if !ok {
		return nil, fmt.Errorf("%q is not a valid %s", s, kind)
	}
	return v, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the LIKE wildcards in s with a backslash.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Execute runs q and returns up to q.MaxRows records of f.
func Execute(ctx context.Context, h *rdb.Handle, f *form.Form, q *Query) ([]*form.FormData, error) {
	rows, err := f.FetchRows(ctx, h, q.SQL, q.Params, q.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to filter form %s: %w", f.ID(), err)
	}
	return rows, nil
}

func invalid() *message.Message {
	m := message.NewError(message.InvalidData)
	return &m
}
