package reading

import "errors"

var (
	// ErrInvalidPage means a page outside [1, totalPages] was submitted.
	ErrInvalidPage = errors.New("page out of range")
	// ErrInvalidPeriod means an unknown activity period was requested.
	ErrInvalidPeriod = errors.New("invalid activity period")
	// ErrInvalidMinutes means a non-positive sample was submitted.
	ErrInvalidMinutes = errors.New("minutes must be positive")
	// ErrNoText means a page yielded no extractable text for read-aloud.
	ErrNoText = errors.New("no text available")
)
