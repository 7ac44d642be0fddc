package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Client -> server event names.
const (
	EventJoinSession          = "joinSession"
	EventSendAsset            = "sendAsset"
	EventSendAssetBatch       = "sendAssetBatch"
	EventSendTemplatedContent = "sendTemplatedContent"
	EventBlankSession         = "blankSession"
	EventStudentPing          = "studentPing"
	EventStudentLeave         = "studentLeave"
	EventRemoveStudent        = "removeStudent"
	EventInsertSlide          = "insertSlide"
	EventDeleteSlide          = "deleteSlide"
	EventUpdateSlideDetails   = "updateSlideDetails"
	EventReorderSlides        = "reorderSlides"
	EventResetSession         = "resetSession"
)

// Server -> client event names.
const (
	EventSessionState         = "sessionState"
	EventSessionStateLite     = "sessionStateLite"
	EventStudentListUpdated   = "studentListUpdated"
	EventStudentActive        = "studentActive"
	EventStudentLeaveAck      = "studentLeaveAck"
	EventReceiveAsset         = "receiveAsset"
	EventReceiveAssetBatch    = "receiveAssetBatch"
	EventTemplatedContent     = "templatedContentReceived"
	EventSlidesUpdated        = "slidesUpdated"
	EventSessionLocked        = "sessionLocked"
	EventSessionReset         = "sessionReset"
	EventRemovedFromSession   = "removedFromSession"
	EventErrorMessage         = "errorMessage"
)

// Envelope is the wire frame for every socket message in both directions.
// Data stays raw until the event name selects a payload type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload carries joinSession. Role is preferred; Type is the legacy
// field name and is honoured when Role is empty.
type JoinPayload struct {
	SessionID    string `json:"sessionId"`
	Role         string `json:"role"`
	Type         string `json:"type"`
	Username     string `json:"username"`
	Organisation string `json:"organisation"`
}

// NormalizedRole returns the lowercased role, falling back to the legacy
// type field.
func (p *JoinPayload) NormalizedRole() string {
	if p.Role != "" {
		return strings.ToLower(p.Role)
	}
	return strings.ToLower(p.Type)
}

// AssetPayload carries sendAsset.
type AssetPayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	Asset     Asset  `json:"asset"`
}

// AssetBatchPayload carries sendAssetBatch.
type AssetBatchPayload struct {
	SessionID string  `json:"sessionId"`
	Username  string  `json:"username"`
	Assets    []Asset `json:"assets"`
}

// TemplatedContentPayload carries sendTemplatedContent. Content is a tag
// ("beginning", "end", ...), never a file reference; it bypasses
// currentState entirely.
type TemplatedContentPayload struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	SlideType string `json:"slideType"`
	Details   string `json:"details"`
}

// SessionRefPayload covers the events that only name a session and a caller:
// blankSession, studentPing, studentLeave, removeStudent.
type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// InsertSlidePayload carries insertSlide. AfterSlideID selects the insertion
// point; nil appends before the trailing sentinel.
type InsertSlidePayload struct {
	SessionID    string `json:"sessionId"`
	AfterSlideID *int   `json:"afterSlideId"`
}

// DeleteSlidePayload carries deleteSlide.
type DeleteSlidePayload struct {
	SessionID string `json:"sessionId"`
	SlideID   int    `json:"slideId"`
}

// UpdateSlideDetailsPayload carries updateSlideDetails. Assets is replaced
// only when present.
type UpdateSlideDetailsPayload struct {
	SessionID string  `json:"sessionId"`
	SlideID   int     `json:"slideId"`
	Details   *string `json:"details"`
	Assets    []Asset `json:"assets"`
}

// ReorderSlidesPayload carries reorderSlides: the full deck in desired order.
type ReorderSlidesPayload struct {
	SessionID string  `json:"sessionId"`
	Slides    []Slide `json:"slides"`
}

// LeaveAck is the response to studentLeave.
type LeaveAck struct {
	Success bool   `json:"success"`
	Removed string `json:"removed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StudentActivePayload is the lightweight facilitator notification for a
// ping, distinct from a full roster re-render.
type StudentActivePayload struct {
	Username   string     `json:"username"`
	LastActive *time.Time `json:"lastActive"`
	JoinedAt   *time.Time `json:"joinedAt"`
}

// PopulatedSession is a session document with file references resolved to
// full records, the shape emitted as sessionState after mutations.
type PopulatedSession struct {
	Session
	CurrentState []*FileRecord      `json:"currentState"`
	StateHistory []PopulatedHistory `json:"stateHistory"`
}

// PopulatedHistory is one history snapshot with resolved file records.
type PopulatedHistory struct {
	State     []*FileRecord `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

// LiteFile is the reduced file shape sent to students in sessionStateLite to
// bound frame size.
type LiteFile struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Mimetype     string `json:"mimetype"`
	OriginalName string `json:"originalName"`
	UploadedBy   string `json:"uploadedBy,omitempty"`
}

// LiteState is the sessionStateLite payload: only what a student client needs
// to render, omitting the full history.
type LiteState struct {
	SessionID        string     `json:"sessionId"`
	CurrentState     []LiteFile `json:"currentState"`
	StateHistorySize int        `json:"stateHistorySize"`
	Timestamp        int64      `json:"timestamp"`
}

// TemplatedContentBroadcast is the templatedContentReceived payload.
type TemplatedContentBroadcast struct {
	SessionID string    `json:"sessionId"`
	Content   string    `json:"content"`
	SlideType string    `json:"slideType"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// SlidesUpdatedPayload is the slidesUpdated payload.
type SlidesUpdatedPayload struct {
	SessionID string  `json:"sessionId"`
	Slides    []Slide `json:"slides"`
}

// SessionLockedPayload is the single locked notice sent to a requester that
// tries to mutate an archived session.
type SessionLockedPayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// RemovedFromSessionPayload is the forced-removal notice pushed to a student
// before their connection is severed.
type RemovedFromSessionPayload struct {
	Reason string `json:"reason"`
}
