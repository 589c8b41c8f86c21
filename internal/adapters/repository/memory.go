package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/monthlyrank/pkg/metrics"
)

type sheet struct {
	header []string
	rows   [][]string
}

// MemoryStore is a mutex-guarded, process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string]*sheet
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string]*sheet)}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreCall("memory", op, time.Since(start))
}

// Header implements Store.
func (s *MemoryStore) Header(_ context.Context, resource string) ([]string, error) {
	defer observe("header", time.Now())
	if resource == "" {
		return nil, ErrEmptyResource
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	sh, ok := s.sheets[resource]
	if !ok || sh.header == nil {
		return nil, nil
	}
	return append([]string(nil), sh.header...), nil
}

// SetHeader implements Store.
func (s *MemoryStore) SetHeader(_ context.Context, resource string, header []string) error {
	defer observe("set_header", time.Now())
	if resource == "" {
		return ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sheetLocked(resource).header = append([]string(nil), header...)
	return nil
}

// AppendRows implements Store.
func (s *MemoryStore) AppendRows(_ context.Context, resource string, rows [][]string) error {
	defer observe("append", time.Now())
	if resource == "" {
		return ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sh := s.sheetLocked(resource)
	sh.rows = append(sh.rows, cloneRows(rows)...)
	return nil
}

// ReadRows implements Store.
func (s *MemoryStore) ReadRows(_ context.Context, resource string) ([][]string, error) {
	defer observe("read", time.Now())
	if resource == "" {
		return nil, ErrEmptyResource
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	sh, ok := s.sheets[resource]
	if !ok {
		return nil, nil
	}
	return cloneRows(sh.rows), nil
}

// Overwrite implements Store.
func (s *MemoryStore) Overwrite(_ context.Context, resource string, block [][]string) error {
	defer observe("overwrite", time.Now())
	if resource == "" {
		return ErrEmptyResource
	}
	if len(block) == 0 {
		return ErrEmptyBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sheets[resource] = &sheet{
		header: append([]string(nil), block[0]...),
		rows:   cloneRows(block[1:]),
	}
	return nil
}

// Resources returns the names of every resource, for diagnostics.
func (s *MemoryStore) Resources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		out = append(out, name)
	}
	return out
}

// Close marks the store closed; later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) sheetLocked(resource string) *sheet {
	sh, ok := s.sheets[resource]
	if !ok {
		sh = &sheet{}
		s.sheets[resource] = sh
	}
	return sh
}
