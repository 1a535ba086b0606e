// Package types holds the database schema model read back by dbschema.
package types

import "strings"

// DBTable is a table as found in the database.
type DBTable struct {
	Name    string     `json:"name"`
	Columns []DBColumn `json:"columns"`
}

// Column returns the column with the given name, compared without case.
func (t *DBTable) Column(name string) (*DBColumn, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// DBColumn is a column as reported by information_schema.columns.
type DBColumn struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	IsNullable      string `json:"is_nullable"` // YES/NO
	OrdinalPosition int    `json:"ordinal_position"`
}

// Nullable reports whether the column accepts NULL.
func (c *DBColumn) Nullable() bool {
	return c.IsNullable == "YES"
}
