// Package report renders a ranking into the text, chunk and embed forms
// consumed by notification sinks, and into the summary block written to
// the store.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/monthlyrank/internal/domain/model"
)

// ChunkSize is the maximum number of characters per text chunk.
const ChunkSize = 1900

// EmbedColor is the gold accent used on ranking embeds.
const EmbedColor = 0xFFD700

// SummaryHeader is the header of the monthly summary resource.
var SummaryHeader = []string{"rank", "player_id", "player_name", "total_points"}

// Embed is a rich message body.
type Embed struct {
	Title       string `json:"title"`
	Color       int    `json:"color"`
	Description string `json:"description"`
}

// Report is a rendered monthly ranking.
type Report struct {
	MonthKey string               `json:"month"`
	Entries  []model.RankingEntry `json:"entries"`
	Text     string               `json:"text"`
	Chunks   []string             `json:"chunks"`
	Embed    Embed                `json:"embed"`
}

// Title returns the heading line for month.
func Title(month string) string {
	return fmt.Sprintf("🏆 %s マンスリーランキング", month)
}

// Line renders one entry.
func Line(e model.RankingEntry) string {
	return fmt.Sprintf("%d位 %s - %dpt\n", e.Rank, e.PlayerName, e.TotalPoints)
}

// Format renders entries for month.
func Format(entries []model.RankingEntry, month string) Report {
	var body strings.Builder
	for _, e := range entries {
		body.WriteString(Line(e))
	}
	text := Title(month) + "\n\n" + body.String()
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	return Report{
		MonthKey: month,
		Entries:  entries,
		Text:     text,
		Chunks:   Chunks(text, ChunkSize),
		Embed: Embed{
			Title:       Title(month),
			Color:       EmbedColor,
			Description: body.String(),
		},
	}
}

// Chunks splits text into consecutive pieces of at most size characters.
// Splits fall on character boundaries, not line boundaries.
func Chunks(text string, size int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// SummaryBlock renders entries as the 2-D block written to the summary
// resource, header first.
func SummaryBlock(entries []model.RankingEntry) [][]string {
	block := make([][]string, 0, len(entries)+1)
	block = append(block, append([]string(nil), SummaryHeader...))
	for _, e := range entries {
		block = append(block, []string{
			strconv.Itoa(e.Rank),
			e.PlayerID,
			e.PlayerName,
			strconv.Itoa(e.TotalPoints),
		})
	}
	return block
}
