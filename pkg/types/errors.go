package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidSessionID = errors.New("session id must be 1-64 characters of [a-zA-Z0-9_-]")
	ErrInvalidUsername  = errors.New("username must be 1-50 printable characters")
	ErrInvalidRole      = errors.New("role must be 'admin', 'facilitator' or 'student'")
	ErrInvalidStatus    = errors.New("status must be 'pending', 'active' or 'archived'")
)
