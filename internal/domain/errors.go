package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflicting settlement")
	ErrValidation = errors.New("validation failed")
	ErrLockHeld   = errors.New("lock already held")
)
