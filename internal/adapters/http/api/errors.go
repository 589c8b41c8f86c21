package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/monthlyrank/internal/adapters/mq/queue"
	"github.com/okian/monthlyrank/internal/adapters/mq/worker"
	service "github.com/okian/monthlyrank/internal/app"
	"github.com/okian/monthlyrank/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// Wrap annotates err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind annotates err with op and marks it with kind.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// notStarted is satisfied by lifecycle errors of the pipeline.
var notStarted = []error{service.ErrNotStarted, worker.ErrStopped, queue.ErrClosed}

// classify maps a pipeline error to a status and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrDuplicateUpload):
		return http.StatusConflict, "duplicate_upload"
	case errors.Is(err, model.ErrDateParse):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, model.ErrEncoding):
		return http.StatusBadRequest, "invalid_encoding"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, queue.ErrFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, model.ErrExternalService):
		return http.StatusBadGateway, "external_service"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	for _, k := range notStarted {
		if errors.Is(err, k) {
			return http.StatusServiceUnavailable, "unavailable"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
