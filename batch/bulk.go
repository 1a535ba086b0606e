package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/rdb"
)

// ListName is the attribute that holds the records of a bulk payload. It is
// also the object name of messages about a whole record of the list.
const ListName = "list"

// ErrNoList is returned for a bulk payload without a list of objects.
var ErrNoList = errors.New("bulk payload has no list of records")

// DecodeList reads a bulk payload of the form {"list": [{...}, ...]}.
func DecodeList(data []byte) ([]map[string]any, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode bulk payload: %w", err)
	}
	raw, ok := payload[ListName]
	if !ok {
		return nil, ErrNoList
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoList, err)
	}
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrNoList, i)
		}
	}
	return rows, nil
}

// Bulk saves rows of f all or nothing. Each row is an update when it carries
// a valid primary key and an insert otherwise. Every row is validated first;
// the database is touched only when all of them pass, and then every row is
// written in one transaction that is rolled back if any write misses or
// faults. Messages are added to sc and Bulk reports whether the rows were
// committed. Only faults other than SQL faults are returned as errors.
func Bulk(ctx context.Context, driver *rdb.Driver, f *form.Form, rows []map[string]any, sc *form.ServiceContext) (bool, error) {
	logger := slog.Default().With("form", f.ID())
	records := make([]*form.FormData, len(rows))
	failed := false
	for i, payload := range rows {
		update, err := f.HasKeyIn(ctx, payload)
		if err != nil {
			return false, fmt.Errorf("failed to read key of row %d: %w", i, err)
		}
		rsc := form.NewServiceContext(sc.UserID, sc.TenantID)
		fd := f.NewFormData()
		if err := fd.Load(ctx, payload, form.LoadOptions{ForInsert: !update}, rsc); err != nil {
			return false, fmt.Errorf("failed to load row %d: %w", i, err)
		}
		if update {
			fd.LoadTimestamp(payload, rsc)
		}
		if !rsc.AllOK() {
			failed = true
		}
		for _, m := range rsc.Messages() {
			sc.Add(inRow(m, i))
		}
		records[i] = fd
	}
	if failed {
		logger.Warn("Bulk rejected, rows in error", "rows", len(rows))
		return false, nil
	}

	committed := false
	err := driver.ReadWrite(ctx, func(h *rdb.Handle) (bool, error) {
		for i, fd := range records {
			inserted, ok, err := fd.Save(ctx, h)
			if err != nil {
				var fault *rdb.SQLFault
				if !errors.As(err, &fault) {
					return false, fmt.Errorf("failed to save row %d: %w", i, err)
				}
				if rdb.IsDuplicateKey(err) {
					logger.Warn("Bulk rolled back, key exists", "row", i, "error", err)
					sc.Add(inRow(message.NewError(message.RowNotInserted), i))
					return false, nil
				}
				logger.Error("Bulk rolled back on SQL fault", "row", i, "error", err)
				sc.Add(inRow(message.NewError(message.SQLFault), i))
				return false, nil
			}
			if !ok {
				id := message.ConcurrentUpdate
				if inserted {
					id = message.RowNotInserted
				}
				logger.Warn("Bulk rolled back, row not saved", "row", i, "inserted", inserted)
				sc.Add(inRow(message.NewError(id), i))
				return false, nil
			}
		}
		committed = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if committed {
		logger.Info("Bulk saved", "rows", len(rows))
	}
	return committed, nil
}

// inRow places a message about a top-level record at its position in the
// list. Messages about child rows keep their own position.
func inRow(m message.Message, row int) message.Message {
	if m.ObjectName == "" {
		m.ObjectName = ListName
		m.RowNumber = row
	}
	return m
}
