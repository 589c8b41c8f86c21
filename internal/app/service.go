// Package service runs the ranking pipeline: ingest an upload, append it
// to the event log, recompute the month, overwrite the monthly summary and
// notify. All passes go through one queue and one worker.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/mq/queue"
	"github.com/okian/monthlyrank/internal/adapters/mq/worker"
	"github.com/okian/monthlyrank/internal/adapters/notify"
	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/internal/domain/aggregate"
	"github.com/okian/monthlyrank/internal/domain/dedupe"
	"github.com/okian/monthlyrank/internal/domain/eventlog"
	"github.com/okian/monthlyrank/internal/domain/ingest"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/ranking"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
	"github.com/okian/monthlyrank/pkg/metrics"
)

// DefaultSummaryPrefix prefixes the month key to name the summary resource.
const DefaultSummaryPrefix = "monthly_"

// Service implements the pipeline used by the HTTP API, the bus and the CLI.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store    repository.Store
	sink     notify.Sink
	ingestor *ingest.Ingestor
	deduper  dedupe.Deduper

	// Built on Start
	log    *eventlog.Log
	engine *aggregate.Engine
	queue  queue.Queue
	worker *worker.Worker

	// Configuration
	queueSize        int
	dedupeSize       int
	rejectDuplicates bool
	eventResource    string
	summaryPrefix    string

	// State
	started   bool
	uploads   int64
	rejected  int64
	published int64
	lastMonth string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the capacity of the pipeline queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many upload keys the duplicate check remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRejectDuplicateUploads turns on filename based upload idempotency.
func WithRejectDuplicateUploads(on bool) Option {
	return func(s *Service) {
		s.rejectDuplicates = on
	}
}

// WithSink sets where reports are sent. The default logs them.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithIngestor sets the upload parser.
func WithIngestor(in *ingest.Ingestor) Option {
	return func(s *Service) {
		if in != nil {
			s.ingestor = in
		}
	}
}

// WithEventResource sets the store resource of the event log.
func WithEventResource(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.eventResource = name
		}
	}
}

// WithSummaryPrefix sets the prefix of monthly summary resources.
func WithSummaryPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.summaryPrefix = prefix
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		queueSize:     64,
		dedupeSize:    10000,
		eventResource: eventlog.DefaultResource,
		summaryPrefix: DefaultSummaryPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.ingestor == nil {
		s.ingestor = ingest.New()
	}
	if s.sink == nil {
		s.sink = notify.NewLogSink(s.logger.Named("notify"))
	}
	return s
}

// Start builds the event log and starts the pipeline worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting ranking service...")

	s.log = eventlog.New(s.store,
		eventlog.WithResource(s.eventResource),
		eventlog.WithLogger(s.logger.Named("eventlog")),
	)
	s.engine = aggregate.NewEngine(s.log)

	if s.rejectDuplicates {
		if err := s.seedDeduper(ctx); err != nil {
			return err
		}
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.worker = worker.New(s.queue, s,
		worker.WithName("pipeline"),
		worker.WithLogger(s.logger.Named("worker")),
	)
	// The worker outlives the start context.
	s.worker.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("queueSize", s.queueSize),
		logger.String("eventResource", s.eventResource),
		logger.String("sink", s.sink.Name()),
		logger.Bool("rejectDuplicates", s.rejectDuplicates),
	)
	return nil
}

// seedDeduper remembers every upload already in the log.
func (s *Service) seedDeduper(ctx context.Context) error {
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	records, err := s.log.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("seed duplicate check: %w", err)
	}
	keys := make([]string, 0, len(records))
	for _, r := range records {
		if r.Source != "" {
			keys = append(keys, dedupe.Key(r.Source))
		}
	}
	s.deduper.Seed(ctx, keys...)
	s.logger.Info(ctx, "duplicate check seeded", logger.Int("uploads", s.deduper.Size()))
	return nil
}

// Stop closes the queue and waits for the current pass to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	q, w := s.queue, s.worker
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping ranking service...")
	// The running pass takes s.mu for its counters, so wait unlocked.
	_ = q.Close()
	err := w.Shutdown(ctx)
	s.logger.Info(ctx, "ranking service stopped")
	return err
}

// Submit queues u and waits for its pass. Leaving early through ctx skips
// the pass if it has not started yet.
func (s *Service) Submit(ctx context.Context, u model.Upload) (report.Report, error) {
	q, err := s.activeQueue()
	if err != nil {
		return report.Report{}, err
	}
	j := queue.NewUploadJob(ctx, u)
	if err := q.Enqueue(ctx, j); err != nil {
		return report.Report{}, fmt.Errorf("enqueue upload: %w", err)
	}
	return j.Wait(ctx)
}

// Publish queues a republish of month and waits for it.
func (s *Service) Publish(ctx context.Context, month string) (report.Report, error) {
	if !model.ValidMonthKey(month) {
		return report.Report{}, fmt.Errorf("%w: month %q", aggregate.ErrMonthKey, month)
	}
	q, err := s.activeQueue()
	if err != nil {
		return report.Report{}, err
	}
	j := queue.NewPublishJob(ctx, month)
	if err := q.Enqueue(ctx, j); err != nil {
		return report.Report{}, fmt.Errorf("enqueue publish: %w", err)
	}
	return j.Wait(ctx)
}

func (s *Service) activeQueue() (queue.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.queue, nil
}

// Handle runs one queued job. It is called by the pipeline worker only.
func (s *Service) Handle(ctx context.Context, j queue.Job) (report.Report, error) {
	switch j.Kind {
	case queue.KindUpload:
		return s.Process(ctx, j.Upload)
	case queue.KindPublish:
		return s.publish(ctx, j.Month)
	default:
		return report.Report{}, fmt.Errorf("%w: %s", ErrUnknownJob, j.Kind)
	}
}

// Process runs the full pass for u. Callers must serialize calls; Submit
// does so through the queue.
func (s *Service) Process(ctx context.Context, u model.Upload) (report.Report, error) {
	start := time.Now()
	defer func() { metrics.RecordPipelineLatency(time.Since(start)) }()

	batch, err := s.ingestor.IngestBatch(u.Filename, u.Content)
	if err != nil {
		s.reject(ctx, u, err)
		return report.Report{}, fmt.Errorf("ingest %s: %w", u.Filename, err)
	}
	records, month := batch.Records, batch.MonthKey

	key := dedupe.Key(u.Filename)
	if s.deduper != nil && s.deduper.SeenAndRecord(ctx, key) {
		err := fmt.Errorf("%w: %s", model.ErrDuplicateUpload, u.Filename)
		s.reject(ctx, u, err)
		return report.Report{}, err
	}

	if err := s.log.Append(ctx, records); err != nil {
		if s.deduper != nil {
			s.deduper.Unrecord(ctx, key)
		}
		s.reject(ctx, u, err)
		return report.Report{}, err
	}

	points := 0
	for _, r := range records {
		points += r.PointsEarned
	}
	metrics.RecordUploadProcessed(len(records), points)
	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()

	s.logger.Info(ctx, "upload appended",
		logger.String("upload_id", u.ID),
		logger.String("filename", u.Filename),
		logger.String("month", month),
		logger.Int("rows", len(records)),
		logger.Int("points", points),
	)
	r, err := s.publish(ctx, month)
	if err != nil {
		return report.Report{}, fmt.Errorf("%w: month %s: %w", model.ErrPublishAfterAppend, month, err)
	}
	return r, nil
}

// publish recomputes month, overwrites its summary and notifies.
func (s *Service) publish(ctx context.Context, month string) (report.Report, error) {
	r, err := s.build(ctx, month)
	if err != nil {
		return report.Report{}, err
	}
	resource := s.SummaryResource(month)
	if err := s.store.Overwrite(ctx, resource, report.SummaryBlock(r.Entries)); err != nil {
		return report.Report{}, model.External("summary.overwrite", err)
	}
	if err := s.sink.Notify(ctx, r); err != nil {
		return report.Report{}, model.External("notify."+s.sink.Name(), err)
	}

	metrics.RecordRankingPublished()
	metrics.UpdateRankingSize(len(r.Entries))
	s.mu.Lock()
	s.published++
	s.lastMonth = month
	s.mu.Unlock()

	s.logger.Info(ctx, "ranking published",
		logger.String("month", month),
		logger.String("summary", resource),
		logger.Int("entries", len(r.Entries)),
	)
	return r, nil
}

// Ranking recomputes month from the log without writing anything.
func (s *Service) Ranking(ctx context.Context, month string) (report.Report, error) {
	if _, err := s.activeQueue(); err != nil {
		return report.Report{}, err
	}
	return s.build(ctx, month)
}

func (s *Service) build(ctx context.Context, month string) (report.Report, error) {
	totals, err := s.engine.Recompute(ctx, month)
	if err != nil {
		return report.Report{}, err
	}
	return report.Format(ranking.Rank(totals), month), nil
}

// SummaryResource names the summary resource for month.
func (s *Service) SummaryResource(month string) string {
	return s.summaryPrefix + month
}

func (s *Service) reject(ctx context.Context, u model.Upload, err error) {
	reason := rejectReason(err)
	metrics.RecordUploadRejected(reason)
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
	s.logger.Warn(ctx, "upload rejected",
		logger.String("upload_id", u.ID),
		logger.String("filename", u.Filename),
		logger.String("reason", reason),
		logger.Error(err),
	)
}

// Stats is a snapshot of service counters.
type Stats struct {
	Started          bool   `json:"started"`
	QueueLength      int    `json:"queueLength"`
	QueueCapacity    int    `json:"queueCapacity"`
	Uploads          int64  `json:"uploads"`
	Rejected         int64  `json:"rejected"`
	Published        int64  `json:"published"`
	JobsProcessed    int64  `json:"jobsProcessed"`
	JobsFailed       int64  `json:"jobsFailed"`
	LastMonth        string `json:"lastMonth,omitempty"`
	Sink             string `json:"sink"`
	RejectDuplicates bool   `json:"rejectDuplicates"`
	KnownUploads     int    `json:"knownUploads"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:          s.started,
		QueueCapacity:    s.queueSize,
		Uploads:          s.uploads,
		Rejected:         s.rejected,
		Published:        s.published,
		LastMonth:        s.lastMonth,
		Sink:             s.sink.Name(),
		RejectDuplicates: s.rejectDuplicates,
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len()
	}
	if s.worker != nil {
		st.JobsProcessed, st.JobsFailed = s.worker.Stats()
	}
	if s.deduper != nil {
		st.KnownUploads = s.deduper.Size()
	}
	return st
}
