// Package notify delivers rendered rankings to their audience.
package notify

import (
	"context"
	"time"

	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
	"github.com/okian/monthlyrank/pkg/metrics"
)

// Sink receives a rendered ranking.
type Sink interface {
	Name() string
	Notify(ctx context.Context, r report.Report) error
}

func observe(name string, start time.Time, err error) {
	metrics.RecordSinkCall(name, time.Since(start))
	if err != nil {
		metrics.RecordSinkError(name)
	}
}

// LogSink writes each chunk of the report through the logger.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink. A nil logger uses the global one.
func NewLogSink(lg logger.Logger) *LogSink {
	if lg == nil {
		lg = logger.Get().Named("notify")
	}
	return &LogSink{logger: lg}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, r report.Report) error {
	defer observe(s.Name(), time.Now(), nil)
	for i, c := range r.Chunks {
		s.logger.Info(ctx, "monthly ranking",
			logger.String("month", r.MonthKey),
			logger.Int("chunk", i+1),
			logger.Int("chunks", len(r.Chunks)),
			logger.String("text", c),
		)
	}
	return nil
}

// Multi fans a report out to sinks in order.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Sinks returns the wrapped sinks.
func (m *Multi) Sinks() []Sink { return m.sinks }

// Notify implements Sink. Every sink is tried; the first failure is returned.
func (m *Multi) Notify(ctx context.Context, r report.Report) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
