package ingest

import "strings"

// Option applies a configuration option to the Ingestor.
type Option func(*Ingestor)

// WithRankColumns sets the accepted header names for the rank column.
func WithRankColumns(names ...string) Option {
	return func(in *Ingestor) {
		if n := nonEmpty(names); len(n) > 0 {
			in.rankColumns = n
		}
	}
}

// WithIDColumns sets the accepted header names for the player identifier column.
func WithIDColumns(names ...string) Option {
	return func(in *Ingestor) {
		if n := nonEmpty(names); len(n) > 0 {
			in.idColumns = n
		}
	}
}

// WithNameColumns sets the accepted header names for the player name column.
func WithNameColumns(names ...string) Option {
	return func(in *Ingestor) {
		if n := nonEmpty(names); len(n) > 0 {
			in.nameColumns = n
		}
	}
}

// WithMissingRank sets the rank assumed when a row has none.
func WithMissingRank(rank int) Option {
	return func(in *Ingestor) {
		if rank > 0 {
			in.missingRank = rank
		}
	}
}

// WithEncodings sets the ordered candidate encodings by name.
// Unknown names are ignored; an empty result keeps the defaults.
func WithEncodings(names ...string) Option {
	return func(in *Ingestor) {
		var encs []Encoding
		for _, name := range names {
			if e, ok := LookupEncoding(name); ok {
				encs = append(encs, e)
			}
		}
		if len(encs) > 0 {
			in.encodings = encs
		}
	}
}

func nonEmpty(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s := strings.TrimSpace(n); s != "" {
			out = append(out, s)
		}
	}
	return out
}
