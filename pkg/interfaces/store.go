package interfaces

import (
	"context"

	"github.com/jhughescu/dev-cms/pkg/types"
)

// SessionStore is the document-store boundary for session persistence. It is
// the single source of truth; the socket layer re-reads through it after
// every mutation before fanning out. Each method is atomic with respect to
// the others.
type SessionStore interface {
	// CreateSession persists a new session document. Fails with
	// ErrDuplicateSession if the human-chosen id is taken.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by its human-chosen id, or
	// ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// FindByStudentSocket locates the session whose roster contains the given
	// socket id. Used on disconnect, which carries no application payload.
	FindByStudentSocket(ctx context.Context, socketID string) (*types.Session, error)

	// UpdateStudents replaces the roster array in one write.
	UpdateStudents(ctx context.Context, sessionID string, students []types.Student) error

	// UpdateSlides replaces the slide deck array in one write.
	UpdateSlides(ctx context.Context, sessionID string, slides []types.Slide) error

	// ApplyBroadcast performs the state-changing half of a broadcast in a
	// single transaction: appends rawAssets to the audit log, overwrites
	// currentState with state, and appends exactly one history snapshot of
	// state. A blank is ApplyBroadcast(ctx, id, nil, []string{}).
	ApplyBroadcast(ctx context.Context, sessionID string, rawAssets []types.Asset, state []string) (*types.Session, error)

	// SetStatus moves the session between pending/active/archived, keeping
	// the legacy archived fields in sync.
	SetStatus(ctx context.Context, sessionID string, status string) error

	// ArchiveForFacilitator archives every non-archived session owned by
	// facilitator, returning how many were archived.
	ArchiveForFacilitator(ctx context.Context, facilitator string) (int, error)

	// SetTextContent replaces the shared free-text field.
	SetTextContent(ctx context.Context, sessionID string, text string) error

	// DeleteSession removes the session document outright (resetSession).
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions returns all session documents, newest first.
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}

// FileStore resolves the externally-owned file entities that currentState
// references. The upload pipeline that feeds it lives outside this system.
type FileStore interface {
	// GetByID retrieves a file record, or ErrFileNotFound.
	GetByID(ctx context.Context, id string) (*types.FileRecord, error)

	// GetByURL retrieves a file record by its public URL, or ErrFileNotFound.
	// Broadcast resolution falls back to this when an asset carries no id.
	GetByURL(ctx context.Context, url string) (*types.FileRecord, error)

	// Populate resolves an ordered id list to full records, preserving order.
	// Unknown ids are skipped, not errors; a missing file must not block a
	// broadcast fan-out.
	Populate(ctx context.Context, ids []string) ([]*types.FileRecord, error)

	// CreateFile persists a record (upload boundary and tests).
	CreateFile(ctx context.Context, file *types.FileRecord) error
}
