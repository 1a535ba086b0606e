// Package batch turns flat external rows into validated, persisted records.
//
// A RowProcessor reads rows from a RowSource, maps each row onto one or more
// forms through FormMappers and either only validates them or inserts them
// with one transaction per row. Bulk saves a list of record payloads in a
// single all-or-nothing transaction.
package batch

import (
	"github.com/stokaro/formkit/core/message"
)

// Row is one flat input row keyed by column name.
type Row map[string]string

// RowSource produces the rows of a run. Calls strictly alternate with the
// processing of the returned row: prev carries the messages produced for the
// row returned by the previous call (nil on the first call). The source ends
// the run by returning false; that final call still acknowledges the last row.
type RowSource interface {
	NextRow(prev []message.Message) (Row, bool, error)
}

// RowSourceFunc adapts a function to RowSource.
type RowSourceFunc func(prev []message.Message) (Row, bool, error)

func (f RowSourceFunc) NextRow(prev []message.Message) (Row, bool, error) {
	return f(prev)
}

// Rows is a RowSource over a slice. It keeps the acknowledgement of every row
// it handed out.
type Rows struct {
	rows []Row
	pos  int
	acks [][]message.Message
}

// NewRows returns a source that yields rows in order.
func NewRows(rows ...Row) *Rows {
	return &Rows{rows: rows}
}

func (r *Rows) NextRow(prev []message.Message) (Row, bool, error) {
	if r.pos > len(r.acks) {
		r.acks = append(r.acks, prev)
	}
	if r.pos >= len(r.rows) {
		return nil, false, nil
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true, nil
}

// Acks returns the messages acknowledged for each row handed out so far.
func (r *Rows) Acks() [][]message.Message {
	return r.acks
}
