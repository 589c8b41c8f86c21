// Package postgres stores resources as rows of a Postgres table through bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/pkg/metrics"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const backend = "postgres"

// Store is a repository.Store backed by the sheet_rows table.
type Store struct {
	db *bun.DB
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	if _, err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing bun handle. Migrations are not run.
func NewWithDB(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying bun handle.
func (s *Store) DB() *bun.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Header implements repository.Store.
func (s *Store) Header(ctx context.Context, resource string) ([]string, error) {
	defer observe("header", time.Now())
	if resource == "" {
		return nil, repository.ErrEmptyResource
	}
	var row SheetRow
	err := s.db.NewSelect().
		Model(&row).
		Where("resource = ?", resource).
		Where("is_header").
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("header", err)
	}
	if row.Cells == nil {
		return []string{}, nil
	}
	return row.Cells, nil
}

// SetHeader implements repository.Store.
func (s *Store) SetHeader(ctx context.Context, resource string, header []string) error {
	defer observe("set_header", time.Now())
	if resource == "" {
		return repository.ErrEmptyResource
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SheetRow)(nil)).
			Where("resource = ?", resource).
			Where("is_header").
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&SheetRow{Resource: resource, IsHeader: true, Cells: cells(header)}).
			Exec(ctx)
		return err
	})
	if err != nil {
		return fail("set_header", err)
	}
	return nil
}

// AppendRows implements repository.Store. All rows go in one INSERT.
func (s *Store) AppendRows(ctx context.Context, resource string, rows [][]string) error {
	defer observe("append", time.Now())
	if resource == "" {
		return repository.ErrEmptyResource
	}
	if len(rows) == 0 {
		return nil
	}
	models := toModels(resource, rows)
	if _, err := s.db.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fail("append", err)
	}
	return nil
}

// ReadRows implements repository.Store.
func (s *Store) ReadRows(ctx context.Context, resource string) ([][]string, error) {
	defer observe("read", time.Now())
	if resource == "" {
		return nil, repository.ErrEmptyResource
	}
	var models []SheetRow
	err := s.db.NewSelect().
		Model(&models).
		Where("resource = ?", resource).
		Where("NOT is_header").
		Order("id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fail("read", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	out := make([][]string, len(models))
	for i, m := range models {
		out[i] = cells(m.Cells)
	}
	return out, nil
}

// Overwrite implements repository.Store. The delete and insert share one
// transaction.
func (s *Store) Overwrite(ctx context.Context, resource string, block [][]string) error {
	defer observe("overwrite", time.Now())
	if resource == "" {
		return repository.ErrEmptyResource
	}
	if len(block) == 0 {
		return repository.ErrEmptyBlock
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SheetRow)(nil)).
			Where("resource = ?", resource).
			Exec(ctx); err != nil {
			return err
		}
		models := append(
			[]SheetRow{{Resource: resource, IsHeader: true, Cells: cells(block[0])}},
			toModels(resource, block[1:])...,
		)
		_, err := tx.NewInsert().Model(&models).Exec(ctx)
		return err
	})
	if err != nil {
		return fail("overwrite", err)
	}
	return nil
}

func toModels(resource string, rows [][]string) []SheetRow {
	out := make([]SheetRow, len(rows))
	for i, r := range rows {
		out[i] = SheetRow{Resource: resource, Cells: cells(r)}
	}
	return out
}

// cells never returns nil so empty rows are stored as '{}' rather than NULL.
func cells(c []string) []string {
	if c == nil {
		return []string{}
	}
	return append([]string(nil), c...)
}

func fail(op string, err error) error {
	metrics.RecordStoreError(backend, op)
	return fmt.Errorf("postgres %s: %w", op, err)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreCall(backend, op, time.Since(start))
}
