package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/monthlyrank/internal/adapters/mq/bus"
	"github.com/okian/monthlyrank/internal/adapters/notify"
	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/internal/adapters/repository/postgres"
	"github.com/okian/monthlyrank/internal/adapters/repository/sheets"
	"github.com/okian/monthlyrank/internal/adapters/repository/xlsx"
	"github.com/okian/monthlyrank/internal/adapters/retry"
	service "github.com/okian/monthlyrank/internal/app"
	"github.com/okian/monthlyrank/internal/config"
	"github.com/okian/monthlyrank/internal/domain/ingest"
	"github.com/okian/monthlyrank/pkg/logger"
)

// runtimeDeps holds everything built from a Config.
type runtimeDeps struct {
	cfg     *config.Config
	store   repository.Store
	bus     *bus.Bus
	sink    notify.Sink
	svc     *service.Service
	closers []func() error
}

// Close releases the bus and the store.
func (d *runtimeDeps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// build wires the store, bus, sinks and service described by cfg.
func build(ctx context.Context, cfg *config.Config, lg logger.Logger) (*runtimeDeps, error) {
	d := &runtimeDeps{cfg: cfg}
	policy := retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		d.closers = append(d.closers, closeStore)
	}
	d.store = retry.WrapStore(store, policy, lg.Named("retry"))

	if cfg.Bus.Driver != config.BusNone {
		b, err := bus.New(bus.Config{
			Driver:     cfg.Bus.Driver,
			NATSURL:    cfg.Bus.NATSURL,
			QueueGroup: cfg.Bus.QueueGroup,
		}, logger.Slog())
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.bus = b
		d.closers = append(d.closers, b.Close)
	}

	sink, err := buildSink(cfg, d.bus, policy, lg)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.sink = sink

	d.svc = service.New(d.store,
		service.WithLogger(lg.Named("service")),
		service.WithSink(sink),
		service.WithIngestor(buildIngestor(cfg.Ingest)),
		service.WithQueueSize(cfg.QueueSize),
		service.WithEventResource(cfg.Store.EventResource),
		service.WithSummaryPrefix(cfg.Pipeline.SummaryPrefix),
		service.WithRejectDuplicateUploads(cfg.Pipeline.RejectDuplicateUploads),
		service.WithDedupeSize(cfg.Pipeline.DedupeSize),
	)
	return d, nil
}

// openStore opens the configured backend. The returned closer may be nil.
func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, func() error, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		s := repository.NewMemoryStore()
		return s, s.Close, nil
	case config.StoreXLSX:
		s, err := xlsx.Open(cfg.XLSXPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open workbook: %w", err)
		}
		return s, nil, nil
	case config.StoreSheets:
		creds, err := sheets.ReadCredentialsFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		// Token refreshes must outlive the start-up context.
		s, err := sheets.NewWithCredentials(context.WithoutCancel(ctx), cfg.Sheets.SpreadsheetID, creds,
			sheets.WithBaseURL(cfg.Sheets.BaseURL),
			sheets.WithTimeout(cfg.Sheets.Timeout),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store.driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// buildSink fans reports out to every configured sink, each behind retries.
func buildSink(cfg *config.Config, b *bus.Bus, policy retry.Policy, lg logger.Logger) (notify.Sink, error) {
	sinks := make([]notify.Sink, 0, len(cfg.Notify.Sinks))
	for _, name := range cfg.Notify.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notify.NewLogSink(lg.Named("notify")))
		case config.SinkWebhook:
			wh := cfg.Notify.Webhook
			s, err := notify.NewWebhookSink(wh.URL,
				notify.WithMode(wh.Mode),
				notify.WithUsername(wh.Username),
				notify.WithRateLimit(wh.RatePerSecond, wh.Burst),
			)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, retry.WrapSink(s, policy, lg.Named("retry")))
		case config.SinkBus:
			if b == nil {
				return nil, fmt.Errorf("%w: bus sink without a bus", config.ErrInvalidConfig)
			}
			sinks = append(sinks, retry.WrapSink(bus.NewSink(b.Publisher), policy, lg.Named("retry")))
		default:
			return nil, fmt.Errorf("%w: %q", notify.ErrUnknownSink, name)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return notify.NewMulti(sinks...), nil
}

func buildIngestor(cfg config.IngestConfig) *ingest.Ingestor {
	return ingest.New(
		ingest.WithRankColumns(cfg.RankColumn),
		ingest.WithIDColumns(cfg.IDColumn),
		ingest.WithNameColumns(cfg.NameColumn),
		ingest.WithMissingRank(cfg.MissingRank),
		ingest.WithEncodings(cfg.Encodings...),
	)
}
