package authz

import (
	"github.com/jhughescu/dev-cms/pkg/types"
)

// Decision is the outcome of the mutation guard. Unauthorized and Locked are
// deliberately distinct: an unauthorized caller is dropped silently (nothing
// about the session leaks to a non-owner), while a locked session sends a
// single notice back to the requester and nobody else.
type Decision int

const (
	Ok Decision = iota
	NotFound
	Unauthorized
	Locked
)

// String is for logs only; none of these values reach clients verbatim.
func (d Decision) String() string {
	switch d {
	case Ok:
		return "ok"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Check applies the cross-cutting mutation contract: the requester must be
// the session's facilitator, and the session must not be archived. Identity
// is checked before the lock so that a non-owner probing an archived session
// still learns nothing.
func Check(session *types.Session, requester string) Decision {
	if session == nil {
		return NotFound
	}
	if requester != session.Facilitator {
		return Unauthorized
	}
	if session.IsArchived() {
		return Locked
	}
	return Ok
}

// CheckLifecycle applies only the archival lock, for operations that
// authorize by registered socket rather than by username.
func CheckLifecycle(session *types.Session) Decision {
	if session == nil {
		return NotFound
	}
	if session.IsArchived() {
		return Locked
	}
	return Ok
}

// LockedMessage is the single user-visible string for the locked notice.
const LockedMessage = "Session is archived and cannot be modified."
