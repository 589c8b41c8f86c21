package service

import (
	"errors"

	"github.com/okian/monthlyrank/internal/domain/model"
)

var (
	ErrNotStarted = errors.New("service not started")
	ErrUnknownJob = errors.New("unknown job kind")
)

// rejectReason is the metrics label for a failed upload.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrDuplicateUpload):
		return "duplicate"
	case errors.Is(err, model.ErrDateParse):
		return "date"
	case errors.Is(err, model.ErrEncoding):
		return "encoding"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrExternalService):
		return "external"
	default:
		return "other"
	}
}
