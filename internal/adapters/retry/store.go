package retry

import (
	"context"

	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/pkg/logger"
)

// Store retries calls to an underlying repository.Store.
//
// AppendRows is not idempotent, so it is only repeated when the backend
// reported that the previous attempt was rejected.
type Store struct {
	next   repository.Store
	policy Policy
	logger logger.Logger
}

var _ repository.Store = (*Store)(nil)

// WrapStore decorates next with policy.
func WrapStore(next repository.Store, policy Policy, lg logger.Logger) *Store {
	return &Store{next: next, policy: policy, logger: lg}
}

func (s *Store) do(ctx context.Context, retryable func(error) bool, op func() error) error {
	return Do(ctx, s.policy, "store", retryable, s.logger, op)
}

// Header implements repository.Store.
func (s *Store) Header(ctx context.Context, resource string) ([]string, error) {
	var out []string
	err := s.do(ctx, nil, func() error {
		var err error
		out, err = s.next.Header(ctx, resource)
		return err
	})
	return out, err
}

// SetHeader implements repository.Store.
func (s *Store) SetHeader(ctx context.Context, resource string, header []string) error {
	return s.do(ctx, nil, func() error {
		return s.next.SetHeader(ctx, resource, header)
	})
}

// AppendRows implements repository.Store.
func (s *Store) AppendRows(ctx context.Context, resource string, rows [][]string) error {
	return s.do(ctx, Rejected, func() error {
		return s.next.AppendRows(ctx, resource, rows)
	})
}

// ReadRows implements repository.Store.
func (s *Store) ReadRows(ctx context.Context, resource string) ([][]string, error) {
	var out [][]string
	err := s.do(ctx, nil, func() error {
		var err error
		out, err = s.next.ReadRows(ctx, resource)
		return err
	})
	return out, err
}

// Overwrite implements repository.Store.
func (s *Store) Overwrite(ctx context.Context, resource string, block [][]string) error {
	return s.do(ctx, nil, func() error {
		return s.next.Overwrite(ctx, resource, block)
	})
}
