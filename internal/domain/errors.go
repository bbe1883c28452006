package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidFeedURL  = errors.New("invalid feed url")
)
