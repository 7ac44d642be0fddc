package types

import (
	"time"
)

// Session lifecycle states. The legacy Archived boolean is kept in sync with
// StatusArchived for clients that predate the status field.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Connection roles accepted by joinSession.
const (
	RoleAdmin       = "admin"
	RoleFacilitator = "facilitator"
	RoleStudent     = "student"
)

// Slide kinds. Begin and end are the fixed sentinel slides that bracket the
// deck; only content slides carry a display number.
const (
	SlideBegin   = "begin"
	SlideEnd     = "end"
	SlideContent = "content"
)

// Session is the authoritative persisted document for one live classroom
// instance. The store owns it; the socket layer only mutates it through
// atomic store operations and re-reads it before fan-out.
type Session struct {
	SessionID       string          `json:"sessionId"`
	Organisation    string          `json:"organisation"`
	Facilitator     string          `json:"facilitator"`
	JoinToken       string          `json:"joinToken,omitempty"`
	SessionPassword string          `json:"sessionPassword,omitempty"`
	Status          string          `json:"status"`
	Archived        bool            `json:"archived"`
	ArchivedAt      *time.Time      `json:"archivedAt,omitempty"`
	Students        []Student       `json:"students"`
	Assets          []Asset         `json:"assets"`
	Slides          []Slide         `json:"slides"`
	CurrentState    []string        `json:"currentState"`
	StateHistory    []StateSnapshot `json:"stateHistory"`
	TextContent     string          `json:"textContent"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Student is one roster entry. Entries survive disconnects; Connected flips
// to false and the record is reused when the same username rejoins.
type Student struct {
	Username   string     `json:"username"`
	SocketID   string     `json:"socketId"`
	Connected  bool       `json:"connected"`
	JoinedAt   *time.Time `json:"joinedAt"`
	LastActive *time.Time `json:"lastActive"`
	UserAgent  string     `json:"userAgent,omitempty"`
	Browser    string     `json:"browser,omitempty"`
	OS         string     `json:"os,omitempty"`
}

// Asset is one entry in the append-only broadcast audit log. ID carries the
// file reference when the client supplied one; resolution falls back to URL.
type Asset struct {
	ID           string    `json:"id,omitempty"`
	OriginalName string    `json:"originalName"`
	Filename     string    `json:"filename"`
	Mimetype     string    `json:"mimetype"`
	URL          string    `json:"url"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Slide is one ordered unit of the facilitator's prepared deck, distinct from
// the live broadcast state. DisplayNumber is nil for the two sentinels.
type Slide struct {
	SlideID       int       `json:"slideId"`
	Kind          string    `json:"kind"`
	DisplayNumber *int      `json:"displayNumber"`
	Details       string    `json:"details"`
	Assets        []Asset   `json:"assets"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StateSnapshot records what currentState was at one point in time. Exactly
// one snapshot is appended per state-changing operation.
type StateSnapshot struct {
	State     []string  `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// FileRecord is the externally-owned file entity that currentState references.
type FileRecord struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Filename     string    `json:"filename"`
	Mimetype     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	Hash         string    `json:"hash,omitempty"`
	UploadedBy   string    `json:"uploadedBy,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// NewSession builds a fresh pending session with the two sentinel slides in
// place. Facilitator-created slides are inserted strictly between them.
func NewSession(sessionID, facilitator, organisation string) *Session {
	now := time.Now()
	if organisation == "" {
		organisation = "default"
	}
	return &Session{
		SessionID:    sessionID,
		Organisation: organisation,
		Facilitator:  facilitator,
		Status:       StatusPending,
		Students:     []Student{},
		Assets:       []Asset{},
		Slides: []Slide{
			{SlideID: 1, Kind: SlideBegin, CreatedAt: now},
			{SlideID: 2, Kind: SlideEnd, CreatedAt: now},
		},
		CurrentState: []string{},
		StateHistory: []StateSnapshot{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsArchived reports whether the session rejects mutations. Both the status
// field and the legacy boolean are honoured; they are written in sync but
// old documents may carry only the boolean.
func (s *Session) IsArchived() bool {
	return s.Status == StatusArchived || s.Archived
}

// FindStudent returns the roster entry for username, or nil.
func (s *Session) FindStudent(username string) *Student {
	for i := range s.Students {
		if s.Students[i].Username == username {
			return &s.Students[i]
		}
	}
	return nil
}

// FindStudentBySocket returns the roster entry holding socketID, or nil.
// A disconnect carries no application payload, so this is the only way to map
// a dropped socket back to its roster entry.
func (s *Session) FindStudentBySocket(socketID string) *Student {
	for i := range s.Students {
		if s.Students[i].SocketID == socketID {
			return &s.Students[i]
		}
	}
	return nil
}

// IsSentinel reports whether the slide is one of the fixed begin/end markers.
func (sl *Slide) IsSentinel() bool {
	return sl.Kind == SlideBegin || sl.Kind == SlideEnd
}
