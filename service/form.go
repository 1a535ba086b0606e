package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/filter"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/rdb"
)

type formService struct {
	op     form.IoType
	form   *form.Form
	driver *rdb.Driver
	filter *filter.Builder
	logger *slog.Logger
}

func (s *formService) ID() string {
	return s.op.String() + Separator + s.form.ID()
}

func (s *formService) Serve(ctx context.Context, sc *form.ServiceContext, payload []byte, w io.Writer) error {
	var err error
	switch s.op {
	case form.Filter:
		err = s.filterRows(ctx, sc, payload, w)
	case form.Bulk:
		err = s.bulk(ctx, sc, payload)
	default:
		data, decodeErr := form.DecodePayloadBytes(payload)
		if decodeErr != nil {
			s.logger.Warn("Payload is not a JSON object", "error", decodeErr)
			sc.Add(message.NewError(message.InvalidData))
			return nil
		}
		switch s.op {
		case form.Get:
			err = s.get(ctx, sc, data, w)
		case form.Create:
			err = s.create(ctx, sc, data, w)
		case form.Update:
			err = s.update(ctx, sc, data)
		case form.Delete:
			err = s.delete(ctx, sc, data)
		default:
			return fmt.Errorf("operation %s is not served", s.op)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to serve %s: %w", s.ID(), err)
	}
	return nil
}

// sqlFault turns a SQL fault into a message. Other errors are returned.
func (s *formService) sqlFault(err error, sc *form.ServiceContext) error {
	var fault *rdb.SQLFault
	if !errors.As(err, &fault) {
		return err
	}
	s.logger.Error("SQL fault", "error", err)
	sc.Add(message.NewError(message.SQLFault))
	return nil
}

// get reads a record by its unique key when the payload has one, and by its
// primary key otherwise.
func (s *formService) get(ctx context.Context, sc *form.ServiceContext, payload map[string]any, w io.Writer) error {
	fd := s.form.NewFormData()
	found := false
	err := s.driver.Read(ctx, func(h *rdb.Handle) error {
		byUnique, err := fd.LoadUniqueKeys(ctx, payload, sc)
		if err != nil {
			return err
		}
		if byUnique {
			found, err = fd.FetchByUniqueKey(ctx, h)
			return err
		}
		if err := fd.LoadKeys(ctx, payload, sc); err != nil {
			return err
		}
		if !sc.AllOK() {
			return nil
		}
		found, err = fd.Fetch(ctx, h)
		return err
	})
	if err != nil {
		return s.sqlFault(err, sc)
	}
	if !sc.AllOK() {
		return nil
	}
	if !found {
		s.logger.Info("No data found")
		sc.Add(message.NewError(message.NoRowsFound))
		return nil
	}
	if s.form.UserIDIndex() >= 0 && !fd.IsOwner(sc) {
		s.logger.Warn("Record read by a user that does not own it", "user", sc.UserID)
		sc.Add(message.NewError(message.NotAuthorized))
		return nil
	}
	return fd.WriteJSON(w)
}

// create inserts a record and writes it back with its generated key.
func (s *formService) create(ctx context.Context, sc *form.ServiceContext, payload map[string]any, w io.Writer) error {
	fd := s.form.NewFormData()
	if err := fd.Load(ctx, payload, form.LoadOptions{ForInsert: true}, sc); err != nil {
		return err
	}
	if !sc.AllOK() {
		s.logger.Warn("Insert stopped, errors in input data", "errors", sc.NbrErrors())
		return nil
	}
	err := s.driver.ReadWrite(ctx, func(h *rdb.Handle) (bool, error) {
		inserted, err := fd.Insert(ctx, h)
		if rdb.IsDuplicateKey(err) {
			s.logger.Warn("Record not inserted, key exists", "error", err)
			sc.Add(message.NewError(message.RowNotInserted))
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !inserted {
			sc.Add(message.NewError(message.RowNotInserted))
		}
		return inserted, nil
	})
	if err != nil {
		return s.sqlFault(err, sc)
	}
	if !sc.AllOK() {
		return nil
	}
	return fd.WriteJSON(w)
}

func (s *formService) update(ctx context.Context, sc *form.ServiceContext, payload map[string]any) error {
	fd := s.form.NewFormData()
	if err := fd.Load(ctx, payload, form.LoadOptions{}, sc); err != nil {
		return err
	}
	fd.LoadTimestamp(payload, sc)
	if !sc.AllOK() {
		s.logger.Warn("Update stopped, errors in input data", "errors", sc.NbrErrors())
		return nil
	}
	err := s.driver.ReadWrite(ctx, func(h *rdb.Handle) (bool, error) {
		if ok, err := s.checkOwner(ctx, h, fd, sc); !ok || err != nil {
			return false, err
		}
		updated, err := fd.Update(ctx, h)
		if err != nil {
			return false, err
		}
		if !updated {
			sc.Add(message.NewError(message.ConcurrentUpdate))
		}
		return updated, nil
	})
	if err != nil {
		return s.sqlFault(err, sc)
	}
	return nil
}

func (s *formService) delete(ctx context.Context, sc *form.ServiceContext, payload map[string]any) error {
	fd := s.form.NewFormData()
	if err := fd.LoadKeys(ctx, payload, sc); err != nil {
		return err
	}
	if !sc.AllOK() {
		return nil
	}
	err := s.driver.ReadWrite(ctx, func(h *rdb.Handle) (bool, error) {
		if ok, err := s.checkOwner(ctx, h, fd, sc); !ok || err != nil {
			return false, err
		}
		deleted, err := fd.Delete(ctx, h)
		if err != nil {
			return false, err
		}
		if !deleted {
			sc.Add(message.NewError(message.NoRowsFound))
		}
		return deleted, nil
	})
	if err != nil {
		return s.sqlFault(err, sc)
	}
	return nil
}

// checkOwner reads the stored record of a form with a user id field and
// reports whether the user of sc may change it. A refusal is added to sc.
func (s *formService) checkOwner(ctx context.Context, h *rdb.Handle, fd *form.FormData, sc *form.ServiceContext) (bool, error) {
	if s.form.UserIDIndex() < 0 {
		return true, nil
	}
	found, owner, err := fd.FetchOwner(ctx, h, sc)
	if err != nil {
		return false, err
	}
	if !found {
		sc.Add(message.NewError(message.NoRowsFound))
		return false, nil
	}
	if !owner {
		s.logger.Warn("Record changed by a user that does not own it", "user", sc.UserID)
		sc.Add(message.NewError(message.NotAuthorized))
		return false, nil
	}
	return true, nil
}

func (s *formService) filterRows(ctx context.Context, sc *form.ServiceContext, payload []byte, w io.Writer) error {
	req, err := filter.ParseRequest(payload)
	if err != nil {
		s.logger.Warn("Invalid filter request", "error", err)
		sc.Add(message.NewError(message.InvalidData))
		return nil
	}
	q, msg := s.filter.Build(s.form, req, sc.TenantID)
	if msg != nil {
		sc.Add(*msg)
		return nil
	}
	var rows []*form.FormData
	err = s.driver.Read(ctx, func(h *rdb.Handle) error {
		var err error
		rows, err = filter.Execute(ctx, h, s.form, q)
		return err
	})
	if err != nil {
		return s.sqlFault(err, sc)
	}
	s.logger.Info("Rows filtered", "rows", len(rows))
	return form.WriteList(w, rows)
}

func (s *formService) bulk(ctx context.Context, sc *form.ServiceContext, payload []byte) error {
	rows, err := batch.DecodeList(payload)
	if err != nil {
		s.logger.Warn("Invalid bulk payload", "error", err)
		sc.Add(message.NewError(message.InvalidData))
		return nil
	}
	_, err = batch.Bulk(ctx, s.driver, s.form, rows, sc)
	return err
}
