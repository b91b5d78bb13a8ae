package exam

import "errors"

var (
	// ErrNotFound covers both a missing entity and one owned by another
	// user; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when an attempt's mutation window has closed
	// (finished, expired, or past its deadline).
	ErrLocked = errors.New("attempt locked")
	// ErrAlreadyFinished is returned when finishing an attempt that is no
	// longer in progress; scoring is never repeated.
	ErrAlreadyFinished = errors.New("attempt already finished")
	// ErrInsufficientPool is returned when a template's question pool is
	// smaller than its question count.
	ErrInsufficientPool = errors.New("question pool smaller than question count")
)
