package quota

import (
	"errors"

	"github.com/2rkf/nekoi/store"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidLimit is returned when the base limit is not positive
	ErrInvalidLimit = errors.New("base limit must be positive")

	// ErrNilStore is returned when no counter store is configured
	ErrNilStore = errors.New("counter store is required")

	// ErrStoreUnavailable is returned when the counter store cannot be reached,
	// times out or fails. It is the same value as store.ErrUnavailable, so
	// errors.Is works with either.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrUnsupported is returned when the configured store cannot serve an
	// operation (for example Peek on a store without read access).
	ErrUnsupported = errors.New("operation not supported by store")
)
