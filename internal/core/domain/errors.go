package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrPollNotFound     = errors.New("poll not found")
	ErrInvalidOption    = errors.New("invalid option index")
	ErrStoreUnavailable = errors.New("store unavailable")
)
