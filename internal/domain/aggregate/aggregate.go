// Package aggregate rebuilds monthly player totals from the event log.
//
// Totals are never stored incrementally. Every call folds the full log, so
// the result depends only on log content and the requested month.
package aggregate

import (
	"context"
	"fmt"

	"github.com/okian/monthlyrank/internal/domain/model"
)

// Recompute folds records into per-player totals for month. The name of a
// player is the last non-empty name seen in log order, so later uploads can
// correct a display name. Output follows the first appearance of each player
// in the log.
func Recompute(records []model.EventRecord, month string) []model.PlayerMonthlyTotal {
	index := make(map[string]int)
	out := make([]model.PlayerMonthlyTotal, 0)
	for _, r := range records {
		if r.MonthKey != month {
			continue
		}
		i, ok := index[r.PlayerID]
		if !ok {
			i = len(out)
			index[r.PlayerID] = i
			out = append(out, model.PlayerMonthlyTotal{MonthKey: month, PlayerID: r.PlayerID})
		}
		out[i].TotalPoints += r.PointsEarned
		if r.PlayerName != "" {
			out[i].PlayerName = r.PlayerName
		}
	}
	return out
}

// Months lists the distinct month keys present in records, in order of
// first appearance.
func Months(records []model.EventRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.MonthKey]; ok {
			continue
		}
		seen[r.MonthKey] = struct{}{}
		out = append(out, r.MonthKey)
	}
	return out
}

// Reader supplies the full event log.
type Reader interface {
	ReadAll(ctx context.Context) ([]model.EventRecord, error)
}

// Engine recomputes totals straight from a Reader.
type Engine struct {
	log Reader
}

// NewEngine creates an Engine over log.
func NewEngine(log Reader) *Engine {
	return &Engine{log: log}
}

// Recompute reads the whole log and returns the totals for month.
func (e *Engine) Recompute(ctx context.Context, month string) ([]model.PlayerMonthlyTotal, error) {
	if !model.ValidMonthKey(month) {
		return nil, fmt.Errorf("%w: month %q", ErrMonthKey, month)
	}
	records, err := e.log.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return Recompute(records, month), nil
}
