// Package migrator creates the tables of persisted forms that are missing
// from the database.
//
// Tables that exist are never altered: differences in their columns are
// reported by dbschema.Verify and left to the application's own migrations.
package migrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stokaro/formkit/core/ast"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/renderer"
	"github.com/stokaro/formkit/dbschema"
)

// MigrationStatus represents the tables of a set of forms as found in the database
type MigrationStatus struct {
	TotalTables       int      `json:"total_tables"`
	MissingTables     []string `json:"missing_tables"`
	HasPendingChanges bool     `json:"has_pending_changes"`
}

// Migration is one table to create.
type Migration struct {
	Table string `json:"table"`
	SQL   string `json:"sql"`
}

// Migrator creates missing form tables through a driver.
type Migrator struct {
	driver *rdb.Driver
	reader dbschema.TableReader
	logger *slog.Logger
}

// NewMigrator creates a migrator reading the existing tables from information_schema.
func NewMigrator(driver *rdb.Driver) *Migrator {
	return &Migrator{
		driver: driver,
		reader: dbschema.NewReader(driver),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithReader replaces the reader used to find existing tables.
func (m *Migrator) WithReader(r dbschema.TableReader) *Migrator {
	tmp := *m
	tmp.reader = r
	return &tmp
}

// Pending returns the statements creating the tables of forms, children
// included, that do not exist yet. Parents come before their children.
func (m *Migrator) Pending(ctx context.Context, forms []*form.Form) ([]Migration, int, error) {
	r, err := renderer.New(m.driver.Dialect())
	if err != nil {
		return nil, 0, err
	}
	tables := renderer.Tables(forms, m.driver.Dialect())
	var pending []Migration
	for _, t := range tables {
		missing, err := m.missing(ctx, t)
		if err != nil {
			return nil, 0, err
		}
		if !missing {
			continue
		}
		sql, err := r.Render(t)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to render table %s: %w", t.Name, err)
		}
		pending = append(pending, Migration{Table: t.Name, SQL: sql})
	}
	return pending, len(tables), nil
}

func (m *Migrator) missing(ctx context.Context, t *ast.CreateTableNode) (bool, error) {
	_, exists, err := m.reader.ReadTable(ctx, t.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", t.Name, err)
	}
	return !exists, nil
}

// Status reports which tables of forms are missing.
func (m *Migrator) Status(ctx context.Context, forms []*form.Form) (*MigrationStatus, error) {
	pending, total, err := m.Pending(ctx, forms)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{TotalTables: total, MissingTables: []string{}}
	for _, p := range pending {
		status.MissingTables = append(status.MissingTables, p.Table)
	}
	status.HasPendingChanges = len(pending) > 0
	return status, nil
}

// MigrateUp creates the missing tables in one transaction and returns the
// migrations it ran. MySQL and MariaDB commit each CREATE TABLE on their own,
// so a failure there leaves the tables created before it.
func (m *Migrator) MigrateUp(ctx context.Context, forms []*form.Form) ([]Migration, error) {
	pending, _, err := m.Pending(ctx, forms)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		m.logger.Info("No tables to create")
		return nil, nil
	}
	err = m.driver.ReadWrite(ctx, func(h *rdb.Handle) (bool, error) {
		for _, p := range pending {
			m.logger.Info("Creating table", "table", p.Table)
			if _, err := h.Exec(ctx, p.SQL, nil); err != nil {
				return false, fmt.Errorf("failed to create table %s: %w", p.Table, err)
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}
