// Package eventlog is the append-only log of scored event records.
//
// The log is the single source of truth for every total and ranking. Its
// only write is Append; the one exception is the header repair run on
// first access, which replaces a drifted header row and never touches
// the data rows beneath it.
package eventlog

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/pkg/logger"
)

// DefaultResource is the store resource the log lives in.
const DefaultResource = "events"

// Columns is the fixed column order of the log.
var Columns = []string{
	"event_date",
	"month",
	"player_id",
	"player_name",
	"finish_rank",
	"participants",
	"points",
	"source",
}

// Store is the slice of the persistent store the log needs.
type Store interface {
	Header(ctx context.Context, resource string) ([]string, error)
	SetHeader(ctx context.Context, resource string, header []string) error
	AppendRows(ctx context.Context, resource string, rows [][]string) error
	ReadRows(ctx context.Context, resource string) ([][]string, error)
}

// Log reads and appends event records in a Store resource.
type Log struct {
	store    Store
	resource string
	logger   logger.Logger

	mu       sync.Mutex
	verified bool
}

// Option applies a configuration option to the Log.
type Option func(*Log)

// WithResource sets the store resource name.
func WithResource(name string) Option {
	return func(l *Log) {
		if name != "" {
			l.resource = name
		}
	}
}

// WithLogger sets the logger used for repair and skipped-row warnings.
func WithLogger(lg logger.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a Log over store.
func New(store Store, opts ...Option) *Log {
	l := &Log{
		store:    store,
		resource: DefaultResource,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("eventlog")
	}
	return l
}

// Resource returns the store resource name.
func (l *Log) Resource() string { return l.resource }

// ensureSchema verifies the header once per Log. Absent headers are
// created; mismatched headers are replaced in place, keeping every row.
func (l *Log) ensureSchema(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.verified {
		return nil
	}

	header, err := l.store.Header(ctx, l.resource)
	if err != nil {
		return model.External("eventlog.header", err)
	}
	if !slices.Equal(header, Columns) {
		if len(header) == 0 {
			l.logger.Info(ctx, "creating event log header", logger.String("resource", l.resource))
		} else {
			l.logger.Warn(ctx, "event log header drifted; repairing header row only",
				logger.String("resource", l.resource),
				logger.Any("found", header),
				logger.Any("expected", Columns),
			)
		}
		if err := l.store.SetHeader(ctx, l.resource, Columns); err != nil {
			return model.External("eventlog.repair_header", err)
		}
	}
	l.verified = true
	return nil
}

// Append writes records as one batch. Empty batches do nothing.
func (l *Log) Append(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = encode(r)
	}
	if err := l.store.AppendRows(ctx, l.resource, rows); err != nil {
		return model.External("eventlog.append", err)
	}
	return nil
}

// ReadAll returns every decodable record in append order. Rows that do
// not fit the schema are skipped and left in the store.
func (l *Log) ReadAll(ctx context.Context) ([]model.EventRecord, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := l.store.ReadRows(ctx, l.resource)
	if err != nil {
		return nil, model.External("eventlog.read", err)
	}
	out := make([]model.EventRecord, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		rec, err := decode(row)
		if err != nil {
			skipped++
			l.logger.Debug(ctx, "skipping undecodable event log row",
				logger.Int("row", i+2),
				logger.Error(err),
			)
			continue
		}
		out = append(out, rec)
	}
	if skipped > 0 {
		l.logger.Warn(ctx, "event log contains rows outside the current schema",
			logger.String("resource", l.resource),
			logger.Int("skipped", skipped),
		)
	}
	return out, nil
}

// Len returns the number of decodable records in the log.
func (l *Log) Len(ctx context.Context) (int, error) {
	recs, err := l.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func encode(r model.EventRecord) []string {
	return []string{
		r.EventDate.Format(model.DateLayout),
		r.MonthKey,
		r.PlayerID,
		r.PlayerName,
		strconv.Itoa(r.FinishRank),
		strconv.Itoa(r.ParticipantCount),
		strconv.Itoa(r.PointsEarned),
		r.Source,
	}
}

func decode(row []string) (model.EventRecord, error) {
	if len(row) < len(Columns)-1 {
		return model.EventRecord{}, fmt.Errorf("expected %d cells, got %d", len(Columns), len(row))
	}
	cells := make([]string, len(Columns))
	copy(cells, row)

	date, err := time.Parse(model.DateLayout, cells[0])
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("event_date: %w", err)
	}
	if !model.ValidMonthKey(cells[1]) {
		return model.EventRecord{}, fmt.Errorf("month: invalid key %q", cells[1])
	}
	rank, err := strconv.Atoi(cells[4])
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("finish_rank: %w", err)
	}
	participants, err := strconv.Atoi(cells[5])
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("participants: %w", err)
	}
	points, err := strconv.Atoi(cells[6])
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("points: %w", err)
	}
	return model.EventRecord{
		EventDate:        date,
		MonthKey:         cells[1],
		PlayerID:         cells[2],
		PlayerName:       cells[3],
		FinishRank:       rank,
		ParticipantCount: participants,
		PointsEarned:     points,
		Source:           cells[7],
	}, nil
}
