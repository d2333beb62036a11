package monitor

import "errors"

var (
	// ErrProviderUnavailable aborts a whole pass.
	ErrProviderUnavailable = errors.New("snapshot provider unavailable")
	// ErrMalformedSnapshot skips a single site.
	ErrMalformedSnapshot = errors.New("malformed site snapshot")
	ErrPassInProgress    = errors.New("a monitoring pass is already in progress")
)
