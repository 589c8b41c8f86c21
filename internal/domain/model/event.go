// Package model contains domain values passed between layers.
package model

import "time"

// MonthLayout is the layout of a month key ("YYYY-MM").
const MonthLayout = "2006-01"

// DateLayout is the layout used when an event date is persisted.
const DateLayout = "2006-01-02"

// EventRecord is one player's result in one tournament event.
type EventRecord struct {
	EventDate        time.Time // calendar date extracted from the upload filename
	MonthKey         string    // "YYYY-MM" of EventDate
	PlayerID         string    // stable identifier, unique per player
	PlayerName       string    // display name; may change between uploads
	FinishRank       int       // normalized rank, missing ranks already mapped to the worst tier
	ParticipantCount int       // rows in the source upload
	PointsEarned     int       // base points * participant count
	Source           string    // upload filename the row came from
}

// PlayerMonthlyTotal is a player's cumulative points for one month.
type PlayerMonthlyTotal struct {
	MonthKey    string
	PlayerID    string
	PlayerName  string
	TotalPoints int
}

// RankingEntry is one placement in a monthly ranking.
type RankingEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	TotalPoints int    `json:"total_points"`
}

// Upload is a raw result file submitted for scoring.
type Upload struct {
	ID         string
	Filename   string
	Content    []byte
	ReceivedAt time.Time
}

// MonthKeyOf returns the month key for t.
func MonthKeyOf(t time.Time) string {
	return t.Format(MonthLayout)
}

// ValidMonthKey reports whether s is a well-formed "YYYY-MM" key.
func ValidMonthKey(s string) bool {
	if len(s) != len(MonthLayout) {
		return false
	}
	_, err := time.Parse(MonthLayout, s)
	return err == nil
}
