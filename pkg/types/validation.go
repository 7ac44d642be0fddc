package types

import (
	"regexp"
)

// Compiled once at package initialization; validation runs on every join.
var (
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidSessionID checks the human-chosen session identifier. Sessions are
// addressed by this value on every socket operation, so it doubles as a room
// name and must stay URL- and log-safe.
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return sessionIDRegex.MatchString(sessionID)
}

// IsValidUsername checks a participant name. Usernames are display values,
// so the charset is looser than session IDs, but control characters and
// oversized names are rejected before they reach the roster.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	for _, r := range username {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// IsValidRole checks a normalized joinSession role.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleFacilitator, RoleStudent:
		return true
	default:
		return false
	}
}

// IsValidStatus checks a session lifecycle status value.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusActive, StatusArchived:
		return true
	default:
		return false
	}
}
