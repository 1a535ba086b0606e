package dbschema

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
	"github.com/stokaro/formkit/dbschema/types"
)

// TableReader reads the tables that forms are mapped on.
type TableReader interface {
	// ReadTable returns the table, or false when it does not exist.
	ReadTable(ctx context.Context, name string) (*types.DBTable, bool, error)
}

// Reader reads table definitions from information_schema of the schema the
// connection is bound to.
type Reader struct {
	driver *rdb.Driver
}

// NewReader creates a reader on driver.
func NewReader(driver *rdb.Driver) *Reader {
	return &Reader{driver: driver}
}

var columnKinds = []valuetype.Kind{valuetype.Text, valuetype.Text, valuetype.Text, valuetype.Integer}

func (r *Reader) ReadTable(ctx context.Context, name string) (*types.DBTable, bool, error) {
	schema := "DATABASE()"
	if r.driver.Dialect() == platform.Postgres {
		schema = "current_schema()"
		name = strings.ToLower(name)
	}
	query := `SELECT column_name, data_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE table_schema = ` + schema + ` AND table_name = ?
ORDER BY ordinal_position`

	table := &types.DBTable{Name: name}
	err := r.driver.Read(ctx, func(h *rdb.Handle) error {
		_, err := h.Query(ctx, query, []rdb.Param{{Name: "table_name", Kind: valuetype.Text, Value: name}}, columnKinds,
			func(values []any) (bool, error) {
				table.Columns = append(table.Columns, types.DBColumn{
					Name:            text(values[0]),
					DataType:        strings.ToLower(text(values[1])),
					IsNullable:      text(values[2]),
					OrdinalPosition: ordinal(values[3]),
				})
				return true, nil
			})
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read columns of table %s: %w", name, err)
	}
	if len(table.Columns) == 0 {
		return nil, false, nil
	}
	return table, true, nil
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func ordinal(v any) int {
	if n, ok := v.(int64); ok {
		return int(n)
	}
	return 0
}
