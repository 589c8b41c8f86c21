package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for pipeline errors. The typed errors below match them via errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrEncoding        = errors.New("no candidate encoding could parse the upload")
	ErrDateParse       = errors.New("filename has no valid YYYYMMDD date")
	ErrExternalService = errors.New("external service failed")
	ErrDuplicateUpload = errors.New("upload already recorded")

	// ErrPublishAfterAppend marks a pass whose rows were logged but whose
	// summary or notification failed. Replaying the upload would log the
	// rows twice; republishing the month recovers it.
	ErrPublishAfterAppend = errors.New("upload logged but publish failed")
)

// ValidationError reports a required column missing from an upload.
type ValidationError struct {
	Column string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// EncodingError reports that no candidate encoding produced a readable table.
type EncodingError struct {
	Tried []string
	Last  error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("unable to decode upload (tried %s)", strings.Join(e.Tried, ", "))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

func (e *EncodingError) Unwrap() error { return e.Last }

// DateParseError reports a filename without a valid 8-digit date token.
type DateParseError struct {
	Filename string
	Token    string
}

func (e *DateParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("filename %q has no 8-digit YYYYMMDD token", e.Filename)
	}
	return fmt.Sprintf("filename %q: %q is not a valid YYYYMMDD date", e.Filename, e.Token)
}

func (e *DateParseError) Is(target error) bool { return target == ErrDateParse }

// ExternalServiceError wraps a failure from a store or notification collaborator.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External wraps err as an ExternalServiceError unless it already is one.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Op: op, Err: err}
}

// Logged reports whether err came after the upload's rows were committed.
func Logged(err error) bool {
	return errors.Is(err, ErrPublishAfterAppend)
}

// IsTerminal reports whether err is an input error that retrying cannot fix.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrDateParse) ||
		errors.Is(err, ErrDuplicateUpload)
}
