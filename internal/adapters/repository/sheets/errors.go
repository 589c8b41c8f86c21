package sheets

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for Sheets store errors.
var (
	ErrCredentials   = errors.New("invalid service account credentials")
	ErrSpreadsheetID = errors.New("spreadsheet id must not be empty")
	ErrAPI           = errors.New("sheets api request failed")
)

// APIError is a non-2xx response from the Sheets API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets %s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Refused reports whether the request was turned away before it ran. Only
// quota refusals qualify; a 5xx may come after the write was applied.
func (e *APIError) Refused() bool {
	return e.Status == http.StatusTooManyRequests
}
