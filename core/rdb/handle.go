package rdb

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/valuetype"
)

// Param is one positional SQL parameter. Name is only used in diagnostics.
type Param struct {
	Name  string
	Kind  valuetype.Kind
	Value any
}

// Handle executes statements inside one transaction. It never commits or
// rolls back; that is the job of whoever created it.
type Handle struct {
	tx      *sql.Tx
	dialect string
	logger  *slog.Logger
}

func (h *Handle) Dialect() string {
	return h.dialect
}

// Exec runs a write statement and returns the number of affected rows.
func (h *Handle) Exec(ctx context.Context, query string, params []Param) (int64, error) {
	q := Rebind(h.dialect, query)
	h.logger.Debug("Executing statement", "sql", q, "params", len(params))
	res, err := h.tx.ExecContext(ctx, q, args(params)...)
	if err != nil {
		return 0, newFault(query, params, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newFault(query, params, err)
	}
	h.logger.Debug("Statement executed", "rows", n)
	return n, nil
}

// InsertWithKey runs an insert and reads back the key generated for keyColumn.
// When no row is inserted both returns are zero and err is nil.
func (h *Handle) InsertWithKey(ctx context.Context, query string, params []Param, keyColumn string) (rows int64, key int64, err error) {
	if platform.UsesReturning(h.dialect) {
		q := Rebind(h.dialect, query+" RETURNING "+keyColumn)
		h.logger.Debug("Executing insert returning key", "sql", q, "params", len(params))
		err := h.tx.QueryRowContext(ctx, q, args(params)...).Scan(&key)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		if err != nil {
			return 0, 0, newFault(query, params, err)
		}
		h.logger.Debug("Row inserted", "key", key)
		return 1, key, nil
	}

	q := Rebind(h.dialect, query)
	h.logger.Debug("Executing insert with generated key", "sql", q, "params", len(params))
	res, err := h.tx.ExecContext(ctx, q, args(params)...)
	if err != nil {
		return 0, 0, newFault(query, params, err)
	}
	rows, err = res.RowsAffected()
	if err != nil {
		return 0, 0, newFault(query, params, err)
	}
	if rows == 0 {
		return 0, 0, nil
	}
	key, err = res.LastInsertId()
	if err != nil {
		return 0, 0, newFault(query, params, err)
	}
	h.logger.Debug("Row inserted", "key", key)
	return rows, key, nil
}

// ExecBatch runs the same statement once per parameter set and returns the
// total number of affected rows.
func (h *Handle) ExecBatch(ctx context.Context, query string, paramSets [][]Param) (int64, error) {
	if len(paramSets) == 0 {
		return 0, nil
	}
	q := Rebind(h.dialect, query)
	h.logger.Debug("Executing batch", "sql", q, "rows", len(paramSets))
	stmt, err := h.tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, newFault(query, nil, err)
	}
	defer stmt.Close()

	var total int64
	for _, params := range paramSets {
		res, err := stmt.ExecContext(ctx, args(params)...)
		if err != nil {
			return total, newFault(query, params, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, newFault(query, params, err)
		}
		total += n
	}
	h.logger.Debug("Batch executed", "rows", total)
	return total, nil
}

// QueryRow reads the first row of a query, converting column i to kinds[i].
// The second return is false when the query returned no rows.
func (h *Handle) QueryRow(ctx context.Context, query string, params []Param, kinds []valuetype.Kind) ([]any, bool, error) {
	var row []any
	_, err := h.Query(ctx, query, params, kinds, func(values []any) (bool, error) {
		row = values
		return false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return row, row != nil, nil
}

// Query reads rows, converting column i to kinds[i], and hands each row to fn.
// Reading stops when fn returns false or an error. The number of rows handed
// to fn is returned.
func (h *Handle) Query(ctx context.Context, query string, params []Param, kinds []valuetype.Kind, fn func(values []any) (bool, error)) (int, error) {
	q := Rebind(h.dialect, query)
	h.logger.Debug("Executing query", "sql", q, "params", len(params))
	rows, err := h.tx.QueryContext(ctx, q, args(params)...)
	if err != nil {
		return 0, newFault(query, params, err)
	}
	defer rows.Close()

	n := 0
	targets := make([]any, len(kinds))
	for rows.Next() {
		for i, k := range kinds {
			targets[i] = k.ScanTarget()
		}
		if err := rows.Scan(targets...); err != nil {
			return n, newFault(query, params, err)
		}
		values := make([]any, len(kinds))
		for i, k := range kinds {
			values[i] = k.FromScan(targets[i])
		}
		n++
		more, err := fn(values)
		if err != nil {
			return n, err
		}
		if !more {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return n, newFault(query, params, err)
	}
	return n, nil
}

func args(params []Param) []any {
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = p.Kind.ToDB(p.Value)
	}
	return out
}
