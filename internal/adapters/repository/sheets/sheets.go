// Package sheets stores resources as tabs of a Google spreadsheet using the
// Sheets v4 REST API.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/adapters/repository"
	"github.com/okian/monthlyrank/pkg/metrics"
)

const backend = "sheets"

// Store is a repository.Store backed by one spreadsheet.
type Store struct {
	spreadsheetID string
	baseURL       string
	client        *http.Client
	timeout       time.Duration

	mu     sync.Mutex
	titles map[string]bool
}

var _ repository.Store = (*Store)(nil)

// New creates a Store. Without WithHTTPClient requests are sent
// unauthenticated, which only suits test servers.
func New(spreadsheetID string, opts ...Option) (*Store, error) {
	if spreadsheetID == "" {
		return nil, ErrSpreadsheetID
	}
	s := &Store{
		spreadsheetID: spreadsheetID,
		baseURL:       DefaultBaseURL,
		client:        http.DefaultClient,
		timeout:       defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithCredentials creates a Store that signs requests with the service
// account in creds.
func NewWithCredentials(ctx context.Context, spreadsheetID string, creds *Credentials, opts ...Option) (*Store, error) {
	if creds == nil {
		return nil, ErrCredentials
	}
	client := creds.JWTConfig().Client(ctx)
	return New(spreadsheetID, append([]Option{WithHTTPClient(client)}, opts...)...)
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

type spreadsheet struct {
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Header implements repository.Store.
func (s *Store) Header(ctx context.Context, resource string) ([]string, error) {
	defer observe("header", time.Now())
	ok, err := s.hasSheet(ctx, resource)
	if err != nil || !ok {
		return nil, err
	}
	values, err := s.getValues(ctx, rangeOf(resource, "1:1"))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// SetHeader implements repository.Store. The first row is cleared before
// writing so a shorter header leaves no stale cells.
func (s *Store) SetHeader(ctx context.Context, resource string, header []string) error {
	defer observe("set_header", time.Now())
	if err := s.ensureSheet(ctx, resource); err != nil {
		return err
	}
	r := rangeOf(resource, "1:1")
	if err := s.clear(ctx, r); err != nil {
		return err
	}
	return s.update(ctx, rangeOf(resource, "A1"), [][]string{header})
}

// AppendRows implements repository.Store. The Sheets append call inserts all
// rows or none.
func (s *Store) AppendRows(ctx context.Context, resource string, rows [][]string) error {
	defer observe("append", time.Now())
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureSheet(ctx, resource); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("valueInputOption", "RAW")
	q.Set("insertDataOption", "INSERT_ROWS")
	body := valueRange{MajorDimension: "ROWS", Values: toValues(rows)}
	return s.do(ctx, "append", http.MethodPost, s.valuesURL(rangeOf(resource, "A1"), ":append", q), body, nil)
}

// ReadRows implements repository.Store.
func (s *Store) ReadRows(ctx context.Context, resource string) ([][]string, error) {
	defer observe("read", time.Now())
	ok, err := s.hasSheet(ctx, resource)
	if err != nil || !ok {
		return nil, err
	}
	values, err := s.getValues(ctx, quote(resource))
	if err != nil {
		return nil, err
	}
	if len(values) <= 1 {
		return nil, nil
	}
	return values[1:], nil
}

// Overwrite implements repository.Store.
func (s *Store) Overwrite(ctx context.Context, resource string, block [][]string) error {
	defer observe("overwrite", time.Now())
	if len(block) == 0 {
		return repository.ErrEmptyBlock
	}
	if err := s.ensureSheet(ctx, resource); err != nil {
		return err
	}
	if err := s.clear(ctx, quote(resource)); err != nil {
		return err
	}
	return s.update(ctx, rangeOf(resource, "A1"), block)
}

func (s *Store) loadTitles(ctx context.Context) error {
	if s.titles != nil {
		return nil
	}
	q := url.Values{}
	q.Set("fields", "sheets.properties.title")
	var meta spreadsheet
	if err := s.do(ctx, "metadata", http.MethodGet, s.spreadsheetURL("", q), nil, &meta); err != nil {
		return err
	}
	s.titles = make(map[string]bool, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		s.titles[sh.Properties.Title] = true
	}
	return nil
}

func (s *Store) hasSheet(ctx context.Context, resource string) (bool, error) {
	if resource == "" {
		return false, repository.ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadTitles(ctx); err != nil {
		return false, err
	}
	return s.titles[resource], nil
}

func (s *Store) ensureSheet(ctx context.Context, resource string) error {
	if resource == "" {
		return repository.ErrEmptyResource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadTitles(ctx); err != nil {
		return err
	}
	if s.titles[resource] {
		return nil
	}
	req := map[string]any{
		"requests": []any{
			map[string]any{
				"addSheet": map[string]any{
					"properties": map[string]any{"title": resource},
				},
			},
		},
	}
	if err := s.do(ctx, "add_sheet", http.MethodPost, s.spreadsheetURL(":batchUpdate", nil), req, nil); err != nil {
		return err
	}
	s.titles[resource] = true
	return nil
}

func (s *Store) getValues(ctx context.Context, r string) ([][]string, error) {
	var vr valueRange
	if err := s.do(ctx, "get", http.MethodGet, s.valuesURL(r, "", nil), nil, &vr); err != nil {
		return nil, err
	}
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = stringify(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (s *Store) update(ctx context.Context, r string, rows [][]string) error {
	q := url.Values{}
	q.Set("valueInputOption", "RAW")
	body := valueRange{Range: r, MajorDimension: "ROWS", Values: toValues(rows)}
	return s.do(ctx, "update", http.MethodPut, s.valuesURL(r, "", q), body, nil)
}

func (s *Store) clear(ctx context.Context, r string) error {
	return s.do(ctx, "clear", http.MethodPost, s.valuesURL(r, ":clear", nil), struct{}{}, nil)
}

func (s *Store) do(ctx context.Context, op, method, u string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("sheets %s: encode: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordStoreError(backend, op)
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordStoreError(backend, op)
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb apiErrorBody
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sheets %s: decode: %w", op, err)
	}
	return nil
}

func (s *Store) spreadsheetURL(suffix string, q url.Values) string {
	u := s.baseURL + "/v4/spreadsheets/" + url.PathEscape(s.spreadsheetID) + suffix
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Store) valuesURL(r, suffix string, q url.Values) string {
	return s.spreadsheetURL("/values/"+url.PathEscape(r)+suffix, q)
}

// quote renders a sheet title for A1 notation.
func quote(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func rangeOf(title, cells string) string {
	return quote(title) + "!" + cells
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		cells := make([]any, len(r))
		for j, c := range r {
			cells[j] = c
		}
		out[i] = cells
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func observe(op string, start time.Time) {
	metrics.RecordStoreCall(backend, op, time.Since(start))
}
