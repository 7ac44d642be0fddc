package interfaces

import "errors"

// Store errors shared across component boundaries.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session id already exists")
	ErrFileNotFound     = errors.New("file not found")
)
