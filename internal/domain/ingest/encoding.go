package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/okian/monthlyrank/internal/domain/model"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding turns raw upload bytes into UTF-8 text.
type Encoding struct {
	Name   string
	Decode func([]byte) (string, error)
}

var errInvalidText = errors.New("invalid byte sequence")

// DefaultEncodings is the ordered candidate list: UTF-8 with an optional
// byte-order mark, plain UTF-8, then the legacy Japanese code pages.
func DefaultEncodings() []Encoding {
	return []Encoding{
		{Name: "utf-8-sig", Decode: decodeUTF8SIG},
		{Name: "utf-8", Decode: decodeUTF8},
		{Name: "cp932", Decode: legacyDecoder(japanese.ShiftJIS)},
		{Name: "euc-jp", Decode: legacyDecoder(japanese.EUCJP)},
	}
}

// LookupEncoding returns a known encoding by name.
func LookupEncoding(name string) (Encoding, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	switch want {
	case "shift_jis", "sjis", "windows-31j":
		want = "cp932"
	case "utf8":
		want = "utf-8"
	}
	for _, e := range DefaultEncodings() {
		if e.Name == want {
			return e, true
		}
	}
	return Encoding{}, false
}

func decodeUTF8SIG(b []byte) (string, error) {
	return decodeUTF8(bytes.TrimPrefix(b, utf8BOM))
}

func decodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errInvalidText
	}
	return string(b), nil
}

// legacyDecoder rejects output containing replacement characters, which is
// how x/text reports bytes that are not part of the code page.
func legacyDecoder(enc encoding.Encoding) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		out, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			return "", errInvalidText
		}
		return string(out), nil
	}
}

// decodeCSV tries each candidate encoding in order and returns the first
// table that decodes and parses cleanly.
func decodeCSV(content []byte, candidates []Encoding) (Table, error) {
	tried := make([]string, 0, len(candidates))
	var last error
	for _, enc := range candidates {
		tried = append(tried, enc.Name)
		text, err := enc.Decode(content)
		if err != nil {
			last = fmt.Errorf("%s: %w", enc.Name, err)
			continue
		}
		table, err := parseTable(text)
		if err != nil {
			last = fmt.Errorf("%s: %w", enc.Name, err)
			continue
		}
		return table, nil
	}
	return Table{}, &model.EncodingError{Tried: tried, Last: last}
}

// parseTable reads CSV (or TSV, auto-detected) text. Rows may be shorter
// than the header but never longer.
func parseTable(text string) (Table, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return Table{}, errors.New("empty file")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = detectDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return Table{}, errors.New("empty file")
	}

	header := records[0]
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return Table{}, fmt.Errorf("line %d: expected %d fields, saw %d", i+2, len(header), len(rec))
		}
	}
	return Table{Header: header, Rows: records[1:]}, nil
}

// detectDelimiter counts commas against tabs in the first lines.
func detectDelimiter(text string) rune {
	const sampleLines = 5
	lines := strings.SplitN(text, "\n", sampleLines+1)
	if len(lines) > sampleLines {
		lines = lines[:sampleLines]
	}
	commas, tabs := 0, 0
	for _, l := range lines {
		commas += strings.Count(l, ",")
		tabs += strings.Count(l, "\t")
	}
	if tabs > commas {
		return '\t'
	}
	return ','
}
