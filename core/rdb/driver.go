// Package rdb executes the SQL generated from form metadata. It owns
// transaction boundaries: a Driver hands out Handles, each bound to exactly one
// transaction, and commits or rolls back when the caller's function returns.
//
// SQL is always written with ? placeholders; the Handle rewrites them for the
// dialect in use. Every driver error is wrapped in an SQLFault carrying the
// statement and its parameters.
package rdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stokaro/formkit/core/platform"
)

// ErrNoDriver is returned by components that need a database when none is configured.
var ErrNoDriver = errors.New("no database driver configured")

// Driver opens transactions on a database.
type Driver struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// NewDriver wraps an open database. dialect is one of the platform constants.
func NewDriver(db *sql.DB, dialect string) *Driver {
	return &Driver{
		db:      db,
		dialect: platform.NormalizeDialect(dialect),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the driver and the handles it creates
func (d *Driver) WithLogger(l *slog.Logger) *Driver {
	tmp := *d
	tmp.logger = l
	return &tmp
}

func (d *Driver) Dialect() string {
	return d.dialect
}

// DB returns the underlying database.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) Close() error {
	return d.db.Close()
}

// Read runs fn inside a read-only transaction.
func (d *Driver) Read(ctx context.Context, fn func(h *Handle) error) error {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	if err := fn(d.newHandle(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to end read-only transaction: %w", err)
	}
	return nil
}

// ReadWrite runs fn inside a transaction. The transaction is committed when fn
// returns true and rolled back when it returns false or an error.
func (d *Driver) ReadWrite(ctx context.Context, fn func(h *Handle) (bool, error)) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	ok, err := fn(d.newHandle(tx))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if !ok {
		d.logger.Debug("Rolling back transaction on request")
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("failed to roll back transaction: %w", err)
		}
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Begin starts a transaction owned by the caller, who must call Commit or Rollback.
func (d *Driver) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{Handle: d.newHandle(tx), tx: tx}, nil
}

func (d *Driver) newHandle(tx *sql.Tx) *Handle {
	return &Handle{tx: tx, dialect: d.dialect, logger: d.logger}
}

// Tx is a Handle whose transaction is controlled by the caller.
type Tx struct {
	*Handle
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
