package job

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start while a job is active.
var ErrAlreadyRunning = errors.New("already running")

// ConfigError rejects start parameters before any state changes.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid job config: %s %s", e.Field, e.Reason)
}
