// Package ingest turns an uploaded tournament result file into scored event records.
//
// The ingestor resolves the text encoding, validates the header, sanitizes
// cell values, normalizes ranks and annotates every row with the points it
// earned. Any failure is returned before a single record is produced, so
// callers never have a partial batch to write.
package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/scoring"
)

// Default column names of the tournament export.
const (
	DefaultRankColumn = "順位"
	DefaultIDColumn   = "識別番号"
	DefaultNameColumn = "氏名"

	// DefaultMissingRank is the rank assumed for rows with no usable rank.
	DefaultMissingRank = 64
)

// Table is a decoded upload: one header row and the data rows beneath it.
type Table struct {
	Header []string
	Rows   [][]string
}

// Ingestor parses result files. It is safe for concurrent use.
type Ingestor struct {
	rankColumns []string
	idColumns   []string
	nameColumns []string
	missingRank int
	encodings   []Encoding
}

// New creates an Ingestor with the default column names and encodings.
func New(opts ...Option) *Ingestor {
	in := &Ingestor{
		rankColumns: []string{DefaultRankColumn, "rank"},
		idColumns:   []string{DefaultIDColumn, "player_id", "id"},
		nameColumns: []string{DefaultNameColumn, "player_name", "name"},
		missingRank: DefaultMissingRank,
		encodings:   DefaultEncodings(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Batch is one ingested upload. EventDate and MonthKey are set even when
// the file has no data rows.
type Batch struct {
	EventDate time.Time
	MonthKey  string
	Records   []model.EventRecord
}

// Ingest parses content uploaded as filename into event records.
func (in *Ingestor) Ingest(filename string, content []byte) ([]model.EventRecord, error) {
	b, err := in.IngestBatch(filename, content)
	if err != nil {
		return nil, err
	}
	return b.Records, nil
}

// IngestBatch parses content uploaded as filename. Checks run in order:
// encoding, header, then the date in the filename.
func (in *Ingestor) IngestBatch(filename string, content []byte) (Batch, error) {
	table, err := in.decode(filename, content)
	if err != nil {
		return Batch{}, err
	}

	rankIdx, idIdx, nameIdx, err := in.locateColumns(table.Header)
	if err != nil {
		return Batch{}, err
	}

	rows := sanitizeRows(table.Rows, len(table.Header))

	eventDate, err := ParseEventDate(filename)
	if err != nil {
		return Batch{}, err
	}

	participants := len(rows)
	month := model.MonthKeyOf(eventDate)
	source := filepath.Base(filename)

	records := make([]model.EventRecord, 0, participants)
	for _, row := range rows {
		rank := in.normalizeRank(row[rankIdx])
		records = append(records, model.EventRecord{
			EventDate:        eventDate,
			MonthKey:         month,
			PlayerID:         row[idIdx],
			PlayerName:       row[nameIdx],
			FinishRank:       rank,
			ParticipantCount: participants,
			PointsEarned:     scoring.PointsEarned(rank, participants),
			Source:           source,
		})
	}
	return Batch{EventDate: eventDate, MonthKey: month, Records: records}, nil
}

// decode picks the reader for the file type and returns the parsed table.
func (in *Ingestor) decode(filename string, content []byte) (Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return readWorkbook(content)
	}
	return decodeCSV(content, in.encodings)
}

// locateColumns returns the index of the rank, id and name columns.
func (in *Ingestor) locateColumns(header []string) (int, int, int, error) {
	required := [][]string{in.rankColumns, in.idColumns, in.nameColumns}
	idx := make([]int, len(required))
	for i, names := range required {
		idx[i] = findColumn(header, names)
		if idx[i] < 0 {
			return 0, 0, 0, &model.ValidationError{Column: names[0]}
		}
	}
	return idx[0], idx[1], idx[2], nil
}

// findColumn searches header for any of names, ignoring case, spaces,
// underscores and hyphens.
func findColumn(header []string, names []string) int {
	for _, name := range names {
		want := normalizeHeader(name)
		for i, col := range header {
			if normalizeHeader(col) == want {
				return i
			}
		}
	}
	return -1
}

var headerReplacer = strings.NewReplacer(" ", "", "_", "", "-", "", "\u3000", "", "\ufeff", "")

func normalizeHeader(s string) string {
	return strings.ToLower(headerReplacer.Replace(strings.TrimSpace(s)))
}

// ParseEventDate extracts the event date from the first standalone 8-digit
// token of the file's base name.
func ParseEventDate(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	m := dateToken.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, &model.DateParseError{Filename: base}
	}
	d, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, &model.DateParseError{Filename: base, Token: m[1]}
	}
	return d, nil
}
