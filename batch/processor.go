package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/rdb"
)

// validationKey stands in for a generated key when nothing is inserted.
const validationKey = "1"

// RowError holds the messages of one failed input row.
type RowError struct {
	// Row is the 0-based position of the row in its source.
	Row      int               `json:"row"`
	Messages []message.Message `json:"messages"`
}

// Result summarises a run of a RowProcessor.
type Result struct {
	NbrRows   int        `json:"nbrRows"`
	NbrErrors int        `json:"nbrErrors"`
	Errors    []RowError `json:"errors,omitempty"`
}

// RowProcessor runs input rows through an ordered list of form mappers.
type RowProcessor struct {
	mappers []*FormMapper
	logger  *slog.Logger
}

// NewRowProcessor returns a processor that applies mappers in order to every row.
func NewRowProcessor(mappers ...*FormMapper) *RowProcessor {
	return &RowProcessor{
		mappers: mappers,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the processor
func (p *RowProcessor) WithLogger(l *slog.Logger) *RowProcessor {
	tmp := *p
	tmp.logger = l
	return &tmp
}

// Validate checks every row without touching the database. A mapper that
// publishes its key receives a placeholder value so later mappers can be
// validated as well.
func (p *RowProcessor) Validate(ctx context.Context, src RowSource, sc *form.ServiceContext) (*Result, error) {
	return p.run(src, sc, func(row Row, rsc *form.ServiceContext) (bool, error) {
		ok := true
		for _, m := range p.mappers {
			_, valid, err := m.load(ctx, row, rsc)
			if err != nil {
				return false, err
			}
			if !valid {
				ok = false
				continue
			}
			if m.generatedKey != "" {
				row[m.generatedKey] = validationKey
			}
		}
		return ok, nil
	})
}

// Process inserts every row in its own transaction. A row is committed only
// when all its mappers validate and insert; otherwise it is rolled back and
// the rows already committed stay. SQL faults fail the row, any other error
// ends the run.
func (p *RowProcessor) Process(ctx context.Context, driver *rdb.Driver, src RowSource, sc *form.ServiceContext) (*Result, error) {
	return p.run(src, sc, func(row Row, rsc *form.ServiceContext) (bool, error) {
		tx, err := driver.Begin(ctx)
		if err != nil {
			return false, err
		}
		ok, err := p.insertRow(ctx, tx.Handle, row, rsc)
		if err != nil {
			_ = tx.Rollback()
			return false, err
		}
		if !ok {
			return false, tx.Rollback()
		}
		return true, tx.Commit()
	})
}

func (p *RowProcessor) insertRow(ctx context.Context, h *rdb.Handle, row Row, rsc *form.ServiceContext) (bool, error) {
	for _, m := range p.mappers {
		fd, valid, err := m.load(ctx, row, rsc)
		if err != nil {
			return false, err
		}
		if !valid {
			return false, nil
		}
		inserted, err := fd.Insert(ctx, h)
		if err != nil {
			var fault *rdb.SQLFault
			if !errors.As(err, &fault) {
				return false, err
			}
			if rdb.IsDuplicateKey(err) {
				p.logger.Warn("Row not inserted, key exists", "form", m.form.ID(), "error", err)
				rsc.Add(message.NewError(message.RowNotInserted))
				return false, nil
			}
			p.logger.Error("Row insert failed", "form", m.form.ID(), "error", err)
			rsc.Add(message.NewError(message.SQLFault))
			return false, nil
		}
		if !inserted {
			rsc.Add(message.NewError(message.RowNotInserted))
			return false, nil
		}
		m.publishKey(fd, row)
	}
	return true, nil
}

// run drives the alternating protocol with src. Each row is handled on a copy
// so that keys published for one row never reach another.
func (p *RowProcessor) run(src RowSource, sc *form.ServiceContext, handle func(Row, *form.ServiceContext) (bool, error)) (*Result, error) {
	res := &Result{}
	var prev []message.Message
	for {
		row, more, err := src.NextRow(prev)
		if err != nil {
			return res, fmt.Errorf("failed to read row %d: %w", res.NbrRows, err)
		}
		if !more {
			p.logger.Info("Batch done", "rows", res.NbrRows, "errors", res.NbrErrors)
			return res, nil
		}

		work := maps.Clone(row)
		if work == nil {
			work = Row{}
		}
		rsc := form.NewServiceContext(sc.UserID, sc.TenantID)
		ok, err := handle(work, rsc)
		if err != nil {
			return res, fmt.Errorf("failed to process row %d: %w", res.NbrRows, err)
		}
		if !ok {
			p.logger.Debug("Row failed", "row", res.NbrRows, "messages", rsc.Len())
			res.NbrErrors++
			res.Errors = append(res.Errors, RowError{Row: res.NbrRows, Messages: rsc.Messages()})
		}
		res.NbrRows++
		prev = rsc.Messages()
	}
}
