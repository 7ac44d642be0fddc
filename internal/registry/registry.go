package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/pkg/interfaces"
)

// Registry is the process-local map from session id to the live facilitator
// socket and the set of live student sockets, plus the global admin group.
// It is intentionally volatile: the session store stays authoritative for
// the roster, the registry only routes server pushes to sockets that are
// connected right now. It is rebuilt empty on process restart.
//
// The registry is a constructor dependency of every component that fans out,
// never package state, so tests can substitute their own instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	admins   map[string]interfaces.Conn
	log      zerolog.Logger
}

// entry tracks one session's live sockets. The facilitator slot is
// last-write-wins: a second facilitator connection displaces the first.
type entry struct {
	facilitator interfaces.Conn
	students    map[string]interfaces.Conn
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		admins:   make(map[string]interfaces.Conn),
		log:      log.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) entryFor(sessionID string) *entry {
	e, ok := r.sessions[sessionID]
	if !ok {
		e = &entry{students: make(map[string]interfaces.Conn)}
		r.sessions[sessionID] = e
	}
	return e
}

// SetFacilitator registers conn as the facilitator socket for the session,
// displacing any previous registration without closing it.
func (r *Registry) SetFacilitator(sessionID string, conn interfaces.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entryFor(sessionID).facilitator = conn
}

// Facilitator returns the registered facilitator socket, if any.
func (r *Registry) Facilitator(sessionID string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok || e.facilitator == nil {
		return nil, false
	}
	return e.facilitator, true
}

// IsFacilitatorSocket reports whether socketID is the registered facilitator
// socket for the session. Slide and removal events authorize on this.
func (r *Registry) IsFacilitatorSocket(sessionID, socketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	return ok && e.facilitator != nil && e.facilitator.ID() == socketID
}

// AddStudent adds conn to the session's student room.
func (r *Registry) AddStudent(sessionID string, conn interfaces.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entryFor(sessionID).students[conn.ID()] = conn
}

// AddAdmin joins conn to the global admin group.
func (r *Registry) AddAdmin(conn interfaces.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[conn.ID()] = conn
}

// StudentConn returns the live student connection with the given socket id,
// if it is registered in the session's room.
func (r *Registry) StudentConn(sessionID, socketID string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	conn, ok := e.students[socketID]
	return conn, ok
}

// RemoveSocket prunes socketID from every session that references it and
// from the admin group. If it was a registered facilitator, that slot is
// cleared, not reassigned.
func (r *Registry) RemoveSocket(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.admins, socketID)
	for sessionID, e := range r.sessions {
		delete(e.students, socketID)
		if e.facilitator != nil && e.facilitator.ID() == socketID {
			e.facilitator = nil
		}
		if e.facilitator == nil && len(e.students) == 0 {
			delete(r.sessions, sessionID)
		}
	}
}

// RemoveStudentSocket prunes a single socket from one session's room.
func (r *Registry) RemoveStudentSocket(sessionID, socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sessionID]; ok {
		delete(e.students, socketID)
	}
}

// RemoveSession drops the whole registry entry for a session (reset).
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// EmitToRoom sends an event frame to every student socket in the session's
// room. Delivery failures to individual sockets are logged and skipped; a
// slow client must not block the rest of the room.
func (r *Registry) EmitToRoom(sessionID string, event string, data interface{}) {
	for _, conn := range r.roomConns(sessionID) {
		r.emit(conn, event, data)
	}
}

// EmitToFacilitator sends an event frame to the registered facilitator
// socket, if one is connected.
func (r *Registry) EmitToFacilitator(sessionID string, event string, data interface{}) {
	if conn, ok := r.Facilitator(sessionID); ok {
		r.emit(conn, event, data)
	}
}

// EmitToAdmins sends an event frame to the global admin group.
func (r *Registry) EmitToAdmins(event string, data interface{}) {
	r.mu.RLock()
	conns := make([]interfaces.Conn, 0, len(r.admins))
	for _, c := range r.admins {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		r.emit(conn, event, data)
	}
}

// EmitToConn sends an event frame to one socket.
func (r *Registry) EmitToConn(conn interfaces.Conn, event string, data interface{}) {
	r.emit(conn, event, data)
}

func (r *Registry) roomConns(sessionID string) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	conns := make([]interfaces.Conn, 0, len(e.students))
	for _, c := range e.students {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) emit(conn interfaces.Conn, event string, data interface{}) {
	frame := map[string]interface{}{"event": event, "data": data}
	if err := conn.WriteJSON(frame); err != nil {
		r.log.Warn().Err(err).Str("socket_id", conn.ID()).Str("event", event).
			Msg("failed to deliver event")
	}
}

// Stats returns connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students := 0
	facilitators := 0
	for _, e := range r.sessions {
		students += len(e.students)
		if e.facilitator != nil {
			facilitators++
		}
	}
	return map[string]int{
		"sessions":     len(r.sessions),
		"students":     students,
		"facilitators": facilitators,
		"admins":       len(r.admins),
	}
}
