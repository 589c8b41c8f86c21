// Package ranking orders monthly totals into placements.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/monthlyrank/internal/domain/model"
)

// Rank sorts totals by points descending, then player id ascending, and
// numbers them 1..N. Equal points still get distinct ranks. The input slice
// is not modified.
func Rank(totals []model.PlayerMonthlyTotal) []model.RankingEntry {
	sorted := slices.Clone(totals)
	slices.SortStableFunc(sorted, compare)

	out := make([]model.RankingEntry, len(sorted))
	for i, t := range sorted {
		out[i] = model.RankingEntry{
			Rank:        i + 1,
			PlayerID:    t.PlayerID,
			PlayerName:  t.PlayerName,
			TotalPoints: t.TotalPoints,
		}
	}
	return out
}

func compare(a, b model.PlayerMonthlyTotal) int {
	if c := cmp.Compare(b.TotalPoints, a.TotalPoints); c != 0 {
		return c
	}
	return cmp.Compare(a.PlayerID, b.PlayerID)
}

// Top returns at most n leading entries.
func Top(entries []model.RankingEntry, n int) []model.RankingEntry {
	if n < 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}
