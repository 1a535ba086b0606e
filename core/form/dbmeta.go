package form

import (
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
)

// Param binds one SQL placeholder to the value of a field.
type Param struct {
	Index int
	Name  string
	Kind  valuetype.Kind
}

func paramOf(f *Field) Param {
	return Param{Index: f.index, Name: f.name, Kind: f.Kind()}
}

// bind resolves params against a record's values.
func bind(params []Param, values []any) []rdb.Param {
	out := make([]rdb.Param, len(params))
	for i, p := range params {
		out[i] = rdb.Param{Name: p.Name, Kind: p.Kind, Value: values[p.Index]}
	}
	return out
}

// DbMeta holds the SQL templates of a persisted form with the fields bound to
// each placeholder. Clauses use ? placeholders. A clause that the form's
// column roles cannot support is empty.
type DbMeta struct {
	Table string

	SelectClause string
	SelectParams []Param

	// WhereClause selects one row by primary key, scoped to the tenant.
	WhereClause string
	WhereParams []Param

	UniqueClause string
	UniqueParams []Param

	InsertClause string
	InsertParams []Param

	// UpdateClause includes its where clause.
	UpdateClause string
	UpdateParams []Param

	DeleteClause string

	GeneratedColumn   string
	GeneratedKeyIndex int

	TenantField    *Field
	TimestampField *Field

	// Links are positioned like the form's children; nil when no child is
	// persisted with the parent.
	Links []*DbLink
}

// DbLink describes how a child form's rows are keyed by their parent.
type DbLink struct {
	Child *Form
	// ChildIndexes receive the values of ParentParams, position by position.
	ChildIndexes []int
	ParentParams []Param
	WhereClause  string
}

func newDbMeta(f *Form, spec Spec) (*DbMeta, error) {
	m := &DbMeta{
		Table:             spec.Table,
		GeneratedKeyIndex: -1,
	}

	var (
		selectCols []string
		insertCols []string
		insertVals []string
		updateSets []string
	)
	for _, field := range f.fields {
		role := field.role
		if !role.IsPersisted() {
			continue
		}
		caps := role.Capabilities()
		switch role {
		case GeneratedPrimaryKey:
			m.GeneratedColumn = field.column
			m.GeneratedKeyIndex = field.index
		case TenantKey:
			if m.TenantField == nil {
				m.TenantField = field
			}
		case ModifiedAt:
			if spec.TimestampCheck {
				m.TimestampField = field
			}
		}

		if caps.Selected {
			selectCols = append(selectCols, field.column)
			m.SelectParams = append(m.SelectParams, paramOf(field))
		}
		if caps.Inserted {
			insertCols = append(insertCols, field.column)
			if caps.DBValue != "" {
				insertVals = append(insertVals, caps.DBValue)
			} else {
				insertVals = append(insertVals, "?")
				m.InsertParams = append(m.InsertParams, paramOf(field))
			}
		}
		if caps.Updated {
			if caps.DBValue != "" {
				updateSets = append(updateSets, field.column+"="+caps.DBValue)
			} else {
				updateSets = append(updateSets, field.column+"=?")
				m.UpdateParams = append(m.UpdateParams, paramOf(field))
			}
		}
	}
	if len(selectCols) == 0 {
		return nil, fmt.Errorf("form has table %s but no persisted fields", spec.Table)
	}

	m.SelectClause = "SELECT " + strings.Join(selectCols, ",") + " FROM " + spec.Table
	m.InsertClause = "INSERT INTO " + spec.Table + "(" + strings.Join(insertCols, ",") + ") values (" + strings.Join(insertVals, ",") + ")"
	m.DeleteClause = "DELETE FROM " + spec.Table

	m.WhereClause, m.WhereParams = m.keyClause(f, f.keyIndexes)
	m.UniqueClause, m.UniqueParams = m.keyClause(f, f.uniqueIndexes)

	if m.WhereClause == "" || len(updateSets) == 0 {
		m.UpdateParams = nil
		return m, nil
	}
	m.UpdateClause = "UPDATE " + spec.Table + " SET " + strings.Join(updateSets, ", ") + m.WhereClause
	m.UpdateParams = append(m.UpdateParams, m.WhereParams...)
	if m.TimestampField != nil {
		m.UpdateClause += " AND " + m.TimestampField.column + "=?"
		m.UpdateParams = append(m.UpdateParams, paramOf(m.TimestampField))
	}
	return m, nil
}

// keyClause builds " WHERE k1=? AND k2=?" for the fields at indexes, with the
// tenant column appended.
func (m *DbMeta) keyClause(f *Form, indexes []int) (string, []Param) {
	if len(indexes) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(indexes)+1)
	params := make([]Param, 0, len(indexes)+1)
	for _, idx := range indexes {
		field := f.fields[idx]
		conds = append(conds, field.column+"=?")
		params = append(params, paramOf(field))
	}
	if m.TenantField != nil {
		conds = append(conds, m.TenantField.column+"=?")
		params = append(params, paramOf(m.TenantField))
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}

// buildLinks resolves the persisted children. A child that cannot be resolved
// is logged and left out; when none resolves the form has no links.
func (f *Form) buildLinks(children []ChildSpec) []*DbLink {
	links := make([]*DbLink, len(children))
	found := false
	for i, cs := range children {
		link := f.buildLink(cs, f.children[i].Form)
		if link != nil {
			links[i] = link
			found = true
		}
	}
	if !found {
		return nil
	}
	return links
}

func (f *Form) buildLink(cs ChildSpec, child *Form) *DbLink {
	if len(cs.LinkParentFields) == 0 {
		f.logger.Info("Child has no link fields, it is not persisted with its parent", "form", f.ID(), "child", cs.Name)
		return nil
	}
	if child.meta == nil {
		f.logger.Warn("Child has no db meta data, it is not persisted with its parent", "form", f.ID(), "child", child.ID())
		return nil
	}
	if len(cs.LinkParentFields) != len(cs.LinkChildFields) {
		f.logger.Error("Child link field counts differ", "form", f.ID(), "child", cs.Name,
			"parent_fields", len(cs.LinkParentFields), "child_fields", len(cs.LinkChildFields))
		return nil
	}

	link := &DbLink{Child: child}
	conds := make([]string, 0, len(cs.LinkChildFields))
	for i, name := range cs.LinkChildFields {
		cf, ok := child.fieldMap[name]
		if !ok || !cf.role.IsPersisted() {
			f.logger.Error("Child link field is not a persisted field of the child form", "form", f.ID(), "child", child.ID(), "field", name)
			return nil
		}
		pf, ok := f.fieldMap[cs.LinkParentFields[i]]
		if !ok {
			f.logger.Error("Parent link field is not a field of the form", "form", f.ID(), "field", cs.LinkParentFields[i])
			return nil
		}
		conds = append(conds, cf.column+"=?")
		link.ChildIndexes = append(link.ChildIndexes, cf.index)
		link.ParentParams = append(link.ParentParams, paramOf(pf))
	}
	link.WhereClause = " WHERE " + strings.Join(conds, " AND ")
	return link
}
