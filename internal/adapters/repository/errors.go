package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidLimit      = errors.New("invalid leaderboard limit")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
