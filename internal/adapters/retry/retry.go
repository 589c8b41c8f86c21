// Package retry wraps stores and sinks with a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/pkg/logger"
	"github.com/okian/monthlyrank/pkg/metrics"
)

// Default policy values.
const (
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// Policy bounds how often and how fast a call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

type temporary interface {
	Temporary() bool
}

type refused interface {
	Refused() bool
}

// Retryable reports whether err is worth another attempt. Context errors,
// domain input errors, store contract violations and errors that declare
// themselves non-temporary are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case model.IsTerminal(err):
		return false
	case errors.Is(err, repository.ErrEmptyResource),
		errors.Is(err, repository.ErrEmptyBlock),
		errors.Is(err, repository.ErrClosed):
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Rejected reports whether err is known to have been refused before any
// effect, so a non-idempotent call may be repeated. Temporary errors do
// not qualify: a timeout or 5xx may follow a write that was applied.
func Rejected(err error) bool {
	var r refused
	return errors.As(err, &r) && r.Refused()
}

// Do runs op under policy. component labels metrics and logs. The final
// error is returned unchanged.
func Do(ctx context.Context, p Policy, component string, retryable func(error) bool, lg logger.Logger, op func() error) error {
	if retryable == nil {
		retryable = Retryable
	}
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordRetry(component)
		if lg != nil {
			lg.Warn(ctx, "retrying external call",
				logger.String("component", component),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err),
			)
		}
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
