package authz

import (
	"testing"

	"github.com/jhughescu/dev-cms/pkg/types"
)

func TestCheck(t *testing.T) {
	active := &types.Session{SessionID: "class-1", Facilitator: "alice", Status: types.StatusActive}
	archived := &types.Session{SessionID: "class-1", Facilitator: "alice", Status: types.StatusArchived}
	legacyArchived := &types.Session{SessionID: "class-1", Facilitator: "alice", Archived: true}

	tests := []struct {
		name      string
		session   *types.Session
		requester string
		want      Decision
	}{
		{"nil session", nil, "alice", NotFound},
		{"facilitator on live session", active, "alice", Ok},
		{"non-owner", active, "mallory", Unauthorized},
		{"facilitator on archived session", archived, "alice", Locked},
		{"legacy archived boolean", legacyArchived, "alice", Locked},
		// Identity is checked before the lock: a non-owner probing an
		// archived session must not learn it is archived.
		{"non-owner on archived session", archived, "mallory", Unauthorized},
		{"empty requester", active, "", Unauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Check(tt.session, tt.requester); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckLifecycle(t *testing.T) {
	if got := CheckLifecycle(nil); got != NotFound {
		t.Errorf("CheckLifecycle(nil) = %v, want NotFound", got)
	}
	if got := CheckLifecycle(&types.Session{Status: types.StatusPending}); got != Ok {
		t.Errorf("pending session = %v, want Ok", got)
	}
	if got := CheckLifecycle(&types.Session{Status: types.StatusArchived}); got != Locked {
		t.Errorf("archived session = %v, want Locked", got)
	}
}

func TestDecisionString(t *testing.T) {
	tests := map[Decision]string{
		Ok:           "ok",
		NotFound:     "not_found",
		Unauthorized: "unauthorized",
		Locked:       "locked",
		Decision(99): "unknown",
	}
	for d, want := range tests {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", int(d), got, want)
		}
	}
}
