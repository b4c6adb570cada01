package captcha

import "errors"

var (
	// ErrInvalidParameter reports a caller-supplied limit outside [1, 19].
	// Nothing is mutated when it is returned.
	ErrInvalidParameter = errors.New("limit parameter out of range")
	// ErrNotFound reports a handle that is unknown or already expired.
	ErrNotFound = errors.New("challenge record not found")
	// ErrExhausted reports a record whose access budget was already spent.
	// The record is deleted by the same call that returns this.
	ErrExhausted = errors.New("challenge record exhausted")
	// ErrInvalidRequest reports a verify call with no attempt in it. The
	// check counter is still consumed.
	ErrInvalidRequest = errors.New("attempt missing from verify request")
)
