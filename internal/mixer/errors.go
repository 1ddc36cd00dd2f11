package mixer

import "errors"

var (
	// ErrChannelNotFound is returned by mutating calls on an id the registry does not hold.
	// Callers racing a teardown should treat it as a no-op.
	ErrChannelNotFound = errors.New("mixer: channel not found")
	// ErrInvalidValue is returned for numeric input that cannot be clamped (NaN).
	ErrInvalidValue = errors.New("mixer: invalid value")
	// ErrSourceUnavailable wraps a media element's refusal to provide an audio source.
	ErrSourceUnavailable = errors.New("mixer: audio source unavailable")
	ErrClosed            = errors.New("mixer: closed")

	// errNoChange marks a successful call that left the state untouched, so nothing is published.
	errNoChange = errors.New("mixer: no change")
)
