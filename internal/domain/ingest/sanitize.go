package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// dateToken matches an 8-digit run not embedded in a longer number.
var dateToken = regexp.MustCompile(`(?:^|[^0-9])([0-9]{8})(?:[^0-9]|$)`)

// nullTokens are cell values spreadsheet exports use for "no value",
// including the textual forms of NaN and infinity.
var nullTokens = map[string]struct{}{
	"":          {},
	"nan":       {},
	"-nan":      {},
	"na":        {},
	"n/a":       {},
	"#n/a":      {},
	"#n/a n/a":  {},
	"#na":       {},
	"<na>":      {},
	"null":      {},
	"none":      {},
	"1.#ind":    {},
	"-1.#ind":   {},
	"1.#qnan":   {},
	"-1.#qnan":  {},
	"inf":       {},
	"+inf":      {},
	"-inf":      {},
	"infinity":  {},
	"+infinity": {},
	"-infinity": {},
}

// sanitizeCell trims a cell and maps missing or non-finite markers to "".
func sanitizeCell(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := nullTokens[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

// sanitizeRows pads every row to width, sanitizes each cell and drops rows
// with no values at all.
func sanitizeRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		clean := make([]string, width)
		blank := true
		for i := 0; i < width && i < len(row); i++ {
			clean[i] = sanitizeCell(row[i])
			if clean[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		out = append(out, clean)
	}
	return out
}

// normalizeRank parses a rank cell. Integral floats ("3.0") are accepted;
// anything else, or ranks below 1, become the configured missing rank.
func (in *Ingestor) normalizeRank(cell string) int {
	if n, err := strconv.Atoi(cell); err == nil {
		if n < 1 {
			return in.missingRank
		}
		return n
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return in.missingRank
	}
	return int(f)
}
