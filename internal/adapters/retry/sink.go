package retry

import (
	"context"

	"github.com/okian/monthlyrank/internal/adapters/notify"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
)

// Sink retries a notification sink. Only refusals are retried, so a report
// that may already have been delivered is not sent twice.
type Sink struct {
	next   notify.Sink
	policy Policy
	logger logger.Logger
}

var _ notify.Sink = (*Sink)(nil)

// WrapSink decorates next with policy.
func WrapSink(next notify.Sink, policy Policy, lg logger.Logger) *Sink {
	return &Sink{next: next, policy: policy, logger: lg}
}

// Name implements notify.Sink.
func (s *Sink) Name() string { return s.next.Name() }

// Notify implements notify.Sink.
func (s *Sink) Notify(ctx context.Context, r report.Report) error {
	err := Do(ctx, s.policy, "sink."+s.next.Name(), Rejected, s.logger, func() error {
		return s.next.Notify(ctx, r)
	})
	return model.External("notify."+s.next.Name(), err)
}
