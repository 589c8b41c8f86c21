package sheets

import (
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public Sheets API endpoint.
const DefaultBaseURL = "https://sheets.googleapis.com"

const defaultTimeout = 30 * time.Second

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithBaseURL points the store at another API endpoint.
func WithBaseURL(u string) Option {
	return func(s *Store) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the client used for API calls. The client is expected
// to authorize requests itself.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}
