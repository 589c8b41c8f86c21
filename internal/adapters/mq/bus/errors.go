package bus

import "errors"

var (
	ErrUnknownDriver = errors.New("unknown bus driver")
	ErrNoNATSURL     = errors.New("nats url must not be empty")
)
