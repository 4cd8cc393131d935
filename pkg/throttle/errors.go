package throttle

import "errors"

var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("throttle: invalid configuration")

	// ErrInvalidTokenCount indicates that the requested token count is invalid.
	ErrInvalidTokenCount = errors.New("throttle: invalid token count")

	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("throttle: store unavailable")
)
