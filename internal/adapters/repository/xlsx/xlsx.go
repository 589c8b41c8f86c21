// Package xlsx stores resources as sheets of a local Excel workbook.
//
// The whole workbook is held in memory and rewritten on every mutation.
// Writes go to a temporary file in the same directory and are renamed
// over the target, so a crash never leaves a half-written workbook.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/pkg/metrics"
	"github.com/xuri/excelize/v2"
)

const backend = "xlsx"

type sheet struct {
	header []string
	rows   [][]string
}

// Store is a repository.Store backed by a workbook file.
type Store struct {
	path string

	mu     sync.Mutex
	order  []string
	sheets map[string]*sheet
}

var _ repository.Store = (*Store)(nil)

// Open loads the workbook at path. A missing file starts an empty workbook
// that is created on the first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	s := &Store{path: path, sheets: make(map[string]*sheet)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the workbook location.
func (s *Store) Path() string { return s.path }

func (s *Store) load() error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open workbook %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return fmt.Errorf("read sheet %s: %w", name, err)
		}
		sh := &sheet{}
		if len(rows) > 0 {
			if len(rows[0]) > 0 {
				sh.header = rows[0]
			}
			sh.rows = rows[1:]
		}
		s.order = append(s.order, name)
		s.sheets[name] = sh
	}
	return nil
}

// Header implements repository.Store.
func (s *Store) Header(_ context.Context, resource string) ([]string, error) {
	defer observe("header", time.Now())
	if resource == "" {
		return nil, repository.ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[resource]
	if !ok || sh.header == nil {
		return nil, nil
	}
	return slices.Clone(sh.header), nil
}

// SetHeader implements repository.Store.
func (s *Store) SetHeader(_ context.Context, resource string, header []string) error {
	defer observe("set_header", time.Now())
	return s.mutate(resource, func(sh *sheet) {
		sh.header = slices.Clone(header)
	})
}

// AppendRows implements repository.Store.
func (s *Store) AppendRows(_ context.Context, resource string, rows [][]string) error {
	defer observe("append", time.Now())
	return s.mutate(resource, func(sh *sheet) {
		for _, r := range rows {
			sh.rows = append(sh.rows, slices.Clone(r))
		}
	})
}

// ReadRows implements repository.Store.
func (s *Store) ReadRows(_ context.Context, resource string) ([][]string, error) {
	defer observe("read", time.Now())
	if resource == "" {
		return nil, repository.ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[resource]
	if !ok {
		return nil, nil
	}
	out := make([][]string, len(sh.rows))
	for i, r := range sh.rows {
		out[i] = slices.Clone(r)
	}
	return out, nil
}

// Overwrite implements repository.Store.
func (s *Store) Overwrite(_ context.Context, resource string, block [][]string) error {
	defer observe("overwrite", time.Now())
	if len(block) == 0 {
		return repository.ErrEmptyBlock
	}
	return s.mutate(resource, func(sh *sheet) {
		sh.header = slices.Clone(block[0])
		sh.rows = make([][]string, 0, len(block)-1)
		for _, r := range block[1:] {
			sh.rows = append(sh.rows, slices.Clone(r))
		}
	})
}

// mutate applies fn to a copy of the resource and commits it only when the
// workbook was saved.
func (s *Store) mutate(resource string, fn func(*sheet)) error {
	if resource == "" {
		return repository.ErrEmptyResource
	}
	if len(resource) > excelize.MaxSheetNameLength {
		return fmt.Errorf("%w: %q", ErrSheetName, resource)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &sheet{}
	prev, exists := s.sheets[resource]
	if exists {
		next.header = prev.header
		next.rows = slices.Clone(prev.rows)
	}
	fn(next)

	order := s.order
	if !exists {
		order = append(slices.Clone(s.order), resource)
	}
	staged := make(map[string]*sheet, len(s.sheets)+1)
	for k, v := range s.sheets {
		staged[k] = v
	}
	staged[resource] = next

	if err := s.save(order, staged); err != nil {
		metrics.RecordStoreError(backend, "save")
		return err
	}
	s.order = order
	s.sheets = staged
	return nil
}

func (s *Store) save(order []string, sheets map[string]*sheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultName := f.GetSheetName(0)
	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName(defaultName, name); err != nil {
				return fmt.Errorf("name sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, sheets[name]); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".monthlyrank-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, sh *sheet) error {
	if len(sh.header) > 0 {
		if err := setRow(f, name, 1, sh.header); err != nil {
			return err
		}
	}
	for i, r := range sh.rows {
		if err := setRow(f, name, i+2, r); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, name string, row int, cells []string) error {
	if len(cells) == 0 {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(name, axis, &values); err != nil {
		return fmt.Errorf("write %s!%s: %w", name, axis, err)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordStoreCall(backend, op, time.Since(start))
}
