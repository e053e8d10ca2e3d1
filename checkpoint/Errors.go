package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned for checkpoint names that are empty or
	// that contain path separators.
	ErrInvalidName = errors.New("invalid checkpoint name")

	// ErrCorrupt is returned when a stored snapshot cannot be verified
	// against its metadata record or cannot be decoded.
	ErrCorrupt = errors.New("corrupt checkpoint")
)

// Error records a failed checkpoint operation and the checkpoint it
// was performed on.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
