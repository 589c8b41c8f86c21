package config

import (
	"errors"
)

// Validate and the loaders wrap these, so callers can tell a bad setting
// from an unreadable config source with errors.Is.
var (
	ErrInvalidConfig = errors.New("config: invalid setting")
	ErrLoadConfig    = errors.New("config: cannot load source")
)
