package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
)

// ErrNotSupported is returned when the form's column roles do not allow an
// operation, such as an update on a form without a primary key.
var ErrNotSupported = errors.New("operation not supported by form")

func (fd *FormData) dbMeta() (*DbMeta, error) {
	if fd.form.meta == nil {
		return nil, fmt.Errorf("form %s: %w", fd.form.ID(), ErrNotPersistent)
	}
	return fd.form.meta, nil
}

// Insert writes the record and the rows of its linked children. A generated
// key is written back into the record. It reports false, not an error, when
// no row was inserted.
func (fd *FormData) Insert(ctx context.Context, h *rdb.Handle) (bool, error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, err
	}

	var n int64
	if m.GeneratedColumn != "" {
		var key int64
		n, key, err = h.InsertWithKey(ctx, m.InsertClause, bind(m.InsertParams, fd.values), m.GeneratedColumn)
		if err != nil {
			return false, fmt.Errorf("failed to insert form %s: %w", fd.form.ID(), err)
		}
		if n > 0 {
			v, _ := fd.form.fields[m.GeneratedKeyIndex].Kind().FromJSON(key)
			fd.values[m.GeneratedKeyIndex] = v
		}
	} else {
		n, err = h.Exec(ctx, m.InsertClause, bind(m.InsertParams, fd.values))
		if err != nil {
			return false, fmt.Errorf("failed to insert form %s: %w", fd.form.ID(), err)
		}
	}
	if n == 0 {
		fd.form.logger.Info("No row inserted", "form", fd.form.ID())
		return false, nil
	}

	if m.Links != nil {
		if err := fd.insertChildren(ctx, h, m); err != nil {
			return false, err
		}
	}
	return true, nil
}

// insertChildren copies the parent's link values into each child row and
// inserts the rows of every link in declaration order. Rows of a child that
// generates its own key or has children of its own are inserted one by one so
// their keys propagate; all others go in one batch.
func (fd *FormData) insertChildren(ctx context.Context, h *rdb.Handle, m *DbMeta) error {
	for i, link := range m.Links {
		if link == nil {
			continue
		}
		rows := fd.children[i]
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			for j, p := range link.ParentParams {
				row.values[link.ChildIndexes[j]] = fd.values[p.Index]
			}
		}

		cm := link.Child.meta
		if cm.GeneratedColumn != "" || cm.Links != nil {
			for _, row := range rows {
				ok, err := row.Insert(ctx, h)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("failed to insert child %s of form %s: no row inserted", fd.form.children[i].Name, fd.form.ID())
				}
			}
			continue
		}

		sets := make([][]rdb.Param, len(rows))
		for j, row := range rows {
			sets[j] = bind(cm.InsertParams, row.values)
		}
		if _, err := h.ExecBatch(ctx, cm.InsertClause, sets); err != nil {
			return fmt.Errorf("failed to insert child %s of form %s: %w", fd.form.children[i].Name, fd.form.ID(), err)
		}
	}
	return nil
}

// Update writes the updatable fields of the record. It reports false when no
// row matched the key, which callers surface as a concurrent update.
func (fd *FormData) Update(ctx context.Context, h *rdb.Handle) (bool, error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, err
	}
	if m.UpdateClause == "" {
		return false, fmt.Errorf("update of form %s: %w", fd.form.ID(), ErrNotSupported)
	}
	n, err := h.Exec(ctx, m.UpdateClause, bind(m.UpdateParams, fd.values))
	if err != nil {
		return false, fmt.Errorf("failed to update form %s: %w", fd.form.ID(), err)
	}
	return n > 0, nil
}

// Delete removes the record by primary key and then the rows of its linked
// children.
func (fd *FormData) Delete(ctx context.Context, h *rdb.Handle) (bool, error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, err
	}
	if m.WhereClause == "" {
		return false, fmt.Errorf("delete of form %s: %w", fd.form.ID(), ErrNotSupported)
	}
	n, err := h.Exec(ctx, m.DeleteClause+m.WhereClause, bind(m.WhereParams, fd.values))
	if err != nil {
		return false, fmt.Errorf("failed to delete form %s: %w", fd.form.ID(), err)
	}
	if n == 0 {
		return false, nil
	}
	for i, link := range m.Links {
		if link == nil {
			continue
		}
		sql := link.Child.meta.DeleteClause + link.WhereClause
		if _, err := h.Exec(ctx, sql, bind(link.ParentParams, fd.values)); err != nil {
			return false, fmt.Errorf("failed to delete child %s of form %s: %w", fd.form.children[i].Name, fd.form.ID(), err)
		}
	}
	return true, nil
}

// Fetch reads the record by primary key, then the rows of its linked children.
// It reports false when no row matched.
func (fd *FormData) Fetch(ctx context.Context, h *rdb.Handle) (bool, error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, err
	}
	if m.WhereClause == "" {
		return false, fmt.Errorf("fetch of form %s: %w", fd.form.ID(), ErrNotSupported)
	}
	return fd.fetch(ctx, h, m.SelectClause+m.WhereClause, m.WhereParams)
}

// FetchOwner reads the stored record with the primary key of fd and reports
// whether it exists and belongs to the user of sc. The values of fd and the
// children of the record are left alone.
func (fd *FormData) FetchOwner(ctx context.Context, h *rdb.Handle, sc *ServiceContext) (found, owner bool, err error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, false, err
	}
	if m.WhereClause == "" {
		return false, false, fmt.Errorf("fetch of form %s: %w", fd.form.ID(), ErrNotSupported)
	}
	row, ok, err := h.QueryRow(ctx, m.SelectClause+m.WhereClause, bind(m.WhereParams, fd.values), selectKinds(m))
	if err != nil {
		return false, false, fmt.Errorf("failed to fetch owner of form %s: %w", fd.form.ID(), err)
	}
	if !ok {
		return false, false, nil
	}
	stored := fd.form.NewFormData()
	for i, p := range m.SelectParams {
		stored.values[p.Index] = row[i]
	}
	return true, stored.IsOwner(sc), nil
}

// FetchByUniqueKey reads the record by its unique key.
func (fd *FormData) FetchByUniqueKey(ctx context.Context, h *rdb.Handle) (bool, error) {
	m, err := fd.dbMeta()
	if err != nil {
		return false, err
	}
	if m.UniqueClause == "" {
		return false, fmt.Errorf("fetch by unique key of form %s: %w", fd.form.ID(), ErrNotSupported)
	}
	return fd.fetch(ctx, h, m.SelectClause+m.UniqueClause, m.UniqueParams)
}

func (fd *FormData) fetch(ctx context.Context, h *rdb.Handle, sql string, params []Param) (bool, error) {
	m := fd.form.meta
	row, ok, err := h.QueryRow(ctx, sql, bind(params, fd.values), selectKinds(m))
	if err != nil {
		return false, fmt.Errorf("failed to fetch form %s: %w", fd.form.ID(), err)
	}
	if !ok {
		return false, nil
	}
	for i, p := range m.SelectParams {
		fd.values[p.Index] = row[i]
	}
	if m.Links != nil {
		if err := fd.fetchChildren(ctx, h, m); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (fd *FormData) fetchChildren(ctx context.Context, h *rdb.Handle, m *DbMeta) error {
	for i, link := range m.Links {
		if link == nil {
			continue
		}
		cm := link.Child.meta
		rows, err := link.Child.FetchRows(ctx, h, cm.SelectClause+link.WhereClause, bind(link.ParentParams, fd.values), 0)
		if err != nil {
			return fmt.Errorf("failed to fetch child %s of form %s: %w", fd.form.children[i].Name, fd.form.ID(), err)
		}
		fd.children[i] = rows
	}
	return nil
}

// FetchRows runs a query selecting the form's columns and returns one record
// per row, each with its linked children. maxRows of zero reads every row.
func (f *Form) FetchRows(ctx context.Context, h *rdb.Handle, sql string, params []rdb.Param, maxRows int) ([]*FormData, error) {
	m := f.meta
	if m == nil {
		return nil, fmt.Errorf("form %s: %w", f.ID(), ErrNotPersistent)
	}
	rows := []*FormData{}
	_, err := h.Query(ctx, sql, params, selectKinds(m), func(values []any) (bool, error) {
		fd := f.NewFormData()
		for i, p := range m.SelectParams {
			fd.values[p.Index] = values[i]
		}
		rows = append(rows, fd)
		return maxRows <= 0 || len(rows) < maxRows, nil
	})
	if err != nil {
		return nil, err
	}
	if m.Links != nil {
		for _, fd := range rows {
			if err := fd.fetchChildren(ctx, h, m); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func selectKinds(m *DbMeta) []valuetype.Kind {
	kinds := make([]valuetype.Kind, len(m.SelectParams))
	for i, p := range m.SelectParams {
		kinds[i] = p.Kind
	}
	return kinds
}

// Save inserts a record without a primary key value and updates one with it.
// The first return reports whether the record was inserted.
func (fd *FormData) Save(ctx context.Context, h *rdb.Handle) (inserted bool, ok bool, err error) {
	if fd.HasKey() && fd.form.meta != nil && fd.form.meta.UpdateClause != "" {
		ok, err = fd.Update(ctx, h)
		return false, ok, err
	}
	ok, err = fd.Insert(ctx, h)
	return true, ok, err
}
