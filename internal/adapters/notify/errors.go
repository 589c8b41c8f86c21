package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrNoWebhookURL = errors.New("webhook url must not be empty")
	ErrUnknownSink  = errors.New("unknown notification sink")
)
