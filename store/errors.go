package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the counter store cannot be reached, times
// out, or answers with a protocol error.
var ErrUnavailable = errors.New("counter store unavailable")

// unavailable wraps cause so that both ErrUnavailable and cause match errors.Is.
func unavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, cause)
}
