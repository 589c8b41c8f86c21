// Package scoring maps a tournament finish rank to the points it earns.
package scoring

// Points awarded for finishes outside every listed tier, and for ranks that
// are missing or could not be parsed.
const FloorPoints = 3

// Tier awards Points to every rank in [MinRank, MaxRank].
type Tier struct {
	MinRank int
	MaxRank int
	Points  int
}

// tiers is ordered best first; the first matching tier wins.
var tiers = []Tier{
	{MinRank: 1, MaxRank: 1, Points: 20},
	{MinRank: 2, MaxRank: 2, Points: 15},
	{MinRank: 3, MaxRank: 4, Points: 10},
	{MinRank: 5, MaxRank: 8, Points: 7},
	{MinRank: 9, MaxRank: 16, Points: 5},
	{MinRank: 17, MaxRank: 32, Points: 4},
}

// Tiers returns a copy of the scoring table, best tier first.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// BasePoints returns the points for a finish rank before participant scaling.
// It never fails: ranks below 1 are treated as unparsable and get FloorPoints.
func BasePoints(rank int) int {
	for _, t := range tiers {
		if rank >= t.MinRank && rank <= t.MaxRank {
			return t.Points
		}
	}
	return FloorPoints
}

// PointsEarned scales the base points of rank by the event's participant count.
func PointsEarned(rank, participants int) int {
	return BasePoints(rank) * participants
}
