package presence

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/broadcast"
	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// Tracker reconciles joining connections against the persisted roster and
// keeps the volatile registry aligned with it. The store stays authoritative:
// every roster mutation is persisted before anything is emitted.
type Tracker struct {
	sessions interfaces.SessionStore
	files    interfaces.FileStore
	registry *registry.Registry
	log      zerolog.Logger
}

// NewTracker creates a presence tracker.
func NewTracker(sessions interfaces.SessionStore, files interfaces.FileStore, reg *registry.Registry, log zerolog.Logger) *Tracker {
	return &Tracker{
		sessions: sessions,
		files:    files,
		registry: reg,
		log:      log.With().Str("component", "presence").Logger(),
	}
}

// Join handles joinSession for all three roles. userAgent is the transport
// handshake's User-Agent header.
func (t *Tracker) Join(ctx context.Context, conn interfaces.Conn, p types.JoinPayload, userAgent string) {
	role := p.NormalizedRole()
	if role == "" {
		return
	}
	if !types.IsValidRole(role) {
		t.registry.EmitToConn(conn, types.EventErrorMessage, types.ErrInvalidRole.Error())
		return
	}

	switch role {
	case types.RoleAdmin:
		t.registry.AddAdmin(conn)
		t.registry.EmitToConn(conn, types.EventSessionState, map[string]interface{}{"adminJoined": true})

	case types.RoleFacilitator:
		t.joinFacilitator(ctx, conn, p)

	case types.RoleStudent:
		t.joinStudent(ctx, conn, p, userAgent)
	}
}

// joinFacilitator registers the connection as the facilitator socket for the
// session (last-write-wins) and creates the session on first join. Session
// creation is facilitator-gated; students can never bring a session into
// existence.
func (t *Tracker) joinFacilitator(ctx context.Context, conn interfaces.Conn, p types.JoinPayload) {
	if p.SessionID == "" {
		return
	}
	if !types.IsValidUsername(p.Username) {
		t.registry.EmitToConn(conn, types.EventErrorMessage, types.ErrInvalidUsername.Error())
		return
	}

	session, err := t.sessions.GetSession(ctx, p.SessionID)
	if err == interfaces.ErrSessionNotFound {
		session, err = t.createSession(ctx, p)
		if err != nil {
			t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to create session")
			return
		}
		t.log.Info().Str("session_id", p.SessionID).Str("facilitator", p.Username).
			Msg("session created")
	} else if err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to load session")
		return
	}

	t.registry.SetFacilitator(p.SessionID, conn)

	// Push the current roster back to the joining socket only. An empty list
	// still goes out so a reconnecting facilitator's stale view is cleared.
	t.registry.EmitToConn(conn, types.EventStudentListUpdated, session.Students)

	t.registry.EmitToConn(conn, types.EventSessionState, map[string]interface{}{
		"facilitatorJoined": true,
		"organisation":      session.Organisation,
	})
}

// createSession builds and persists a fresh session with sentinel slides, a
// join token and a session password, archiving the facilitator's earlier
// sessions first so only one is ever live per facilitator.
func (t *Tracker) createSession(ctx context.Context, p types.JoinPayload) (*types.Session, error) {
	if !types.IsValidSessionID(p.SessionID) {
		return nil, types.ErrInvalidSessionID
	}

	if n, err := t.sessions.ArchiveForFacilitator(ctx, p.Username); err != nil {
		t.log.Warn().Err(err).Str("facilitator", p.Username).Msg("failed to archive earlier sessions")
	} else if n > 0 {
		t.log.Info().Int("archived", n).Str("facilitator", p.Username).Msg("archived earlier sessions")
	}

	session := types.NewSession(p.SessionID, p.Username, p.Organisation)
	session.JoinToken = uuid.New().String()
	session.SessionPassword = generatePassword()

	if err := t.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// joinStudent handles first joins and reconnects. The session must already
// exist, and a username that is currently connected is a collision;
// disconnected entries with the same name are reused in place.
func (t *Tracker) joinStudent(ctx context.Context, conn interfaces.Conn, p types.JoinPayload, userAgent string) {
	if p.SessionID == "" {
		return
	}
	if !types.IsValidUsername(p.Username) {
		t.registry.EmitToConn(conn, types.EventErrorMessage, types.ErrInvalidUsername.Error())
		return
	}

	session, err := t.sessions.GetSession(ctx, p.SessionID)
	if err == interfaces.ErrSessionNotFound {
		t.registry.EmitToConn(conn, types.EventErrorMessage, "Session not yet started by facilitator")
		return
	}
	if err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to load session")
		return
	}

	now := time.Now()
	browser, osName := parseUserAgent(userAgent)

	student := session.FindStudent(p.Username)
	if student == nil {
		session.Students = append(session.Students, types.Student{
			Username:   p.Username,
			SocketID:   conn.ID(),
			Connected:  true,
			JoinedAt:   &now,
			LastActive: &now,
			UserAgent:  userAgent,
			Browser:    browser,
			OS:         osName,
		})
		t.log.Info().Str("session_id", p.SessionID).Str("username", p.Username).Msg("student joined")
	} else {
		if student.Connected {
			t.registry.EmitToConn(conn, types.EventErrorMessage,
				fmt.Sprintf("The name %q is already in use. Please choose a different name.", p.Username))
			return
		}
		student.SocketID = conn.ID()
		student.Connected = true
		student.LastActive = &now
		if student.JoinedAt == nil {
			student.JoinedAt = &now
		}
		student.UserAgent = userAgent
		student.Browser = browser
		student.OS = osName
		t.log.Info().Str("session_id", p.SessionID).Str("username", p.Username).Msg("student reconnected")
	}

	if err := t.sessions.UpdateStudents(ctx, p.SessionID, session.Students); err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to persist roster")
		return
	}

	t.registry.AddStudent(p.SessionID, conn)
	t.registry.EmitToFacilitator(p.SessionID, types.EventStudentListUpdated, session.Students)

	// The joining student gets the full session snapshot with currentState
	// resolved; an unresolved fallback beats no snapshot at all.
	if populated, err := broadcast.BuildPopulated(ctx, t.files, session); err == nil {
		t.registry.EmitToConn(conn, types.EventSessionState, populated)
	} else {
		t.log.Warn().Err(err).Str("session_id", p.SessionID).Msg("populate failed, sending raw session")
		t.registry.EmitToConn(conn, types.EventSessionState, session)
	}
}

// Ping refreshes liveness for the matching roster entry, matched by username
// with a socket-id fallback, and sends the facilitator a lightweight
// activity notification rather than a full roster re-render.
func (t *Tracker) Ping(ctx context.Context, conn interfaces.Conn, p types.SessionRefPayload) {
	if p.SessionID == "" {
		return
	}

	session, err := t.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return
	}

	student := session.FindStudent(p.Username)
	if student == nil {
		student = session.FindStudentBySocket(conn.ID())
	}
	if student == nil {
		t.log.Warn().Str("session_id", p.SessionID).Str("username", p.Username).Msg("ping from unknown student")
		return
	}

	now := time.Now()
	student.LastActive = &now
	student.Connected = true
	if student.JoinedAt == nil {
		student.JoinedAt = &now
	}

	if err := t.sessions.UpdateStudents(ctx, p.SessionID, session.Students); err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to persist ping")
		return
	}

	t.registry.EmitToFacilitator(p.SessionID, types.EventStudentActive, types.StudentActivePayload{
		Username:   student.Username,
		LastActive: student.LastActive,
		JoinedAt:   student.JoinedAt,
	})
}

// Disconnect marks the roster entry holding socketID as disconnected and
// prunes the socket from the registry. The entry itself survives so the
// student can reconnect under the same name.
func (t *Tracker) Disconnect(ctx context.Context, socketID string) {
	session, err := t.sessions.FindByStudentSocket(ctx, socketID)
	if err == nil {
		if student := session.FindStudentBySocket(socketID); student != nil {
			student.Connected = false
			if err := t.sessions.UpdateStudents(ctx, session.SessionID, session.Students); err != nil {
				t.log.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to persist disconnect")
			} else {
				t.registry.EmitToFacilitator(session.SessionID, types.EventStudentListUpdated, session.Students)
				t.log.Info().Str("session_id", session.SessionID).Str("username", student.Username).
					Msg("student disconnected")
			}
		}
	} else if err != interfaces.ErrSessionNotFound {
		t.log.Error().Err(err).Str("socket_id", socketID).Msg("disconnect lookup failed")
	}

	t.registry.RemoveSocket(socketID)
}

// Leave removes the roster entry outright (explicit leave, distinct from a
// transport disconnect) and acknowledges the caller.
func (t *Tracker) Leave(ctx context.Context, conn interfaces.Conn, p types.SessionRefPayload) types.LeaveAck {
	if p.SessionID == "" || p.Username == "" {
		return types.LeaveAck{Success: false, Error: "Missing sessionId or username."}
	}

	session, err := t.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return types.LeaveAck{Success: false, Error: "Session not found."}
	}

	idx := -1
	for i := range session.Students {
		if session.Students[i].SocketID == conn.ID() || session.Students[i].Username == p.Username {
			idx = i
			break
		}
	}
	if idx == -1 {
		return types.LeaveAck{Success: false, Error: "Student not in session."}
	}

	removed := session.Students[idx]
	session.Students = append(session.Students[:idx], session.Students[idx+1:]...)

	if err := t.sessions.UpdateStudents(ctx, p.SessionID, session.Students); err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to persist leave")
		return types.LeaveAck{Success: false, Error: "Failed to leave session."}
	}

	t.registry.RemoveStudentSocket(p.SessionID, conn.ID())
	t.registry.EmitToFacilitator(p.SessionID, types.EventStudentListUpdated, session.Students)

	return types.LeaveAck{Success: true, Removed: removed.Username}
}

// RemoveStudent is the facilitator-initiated removal: validates that the
// requesting socket is the registered facilitator socket, removes the named
// student, and severs their connection if they are live.
func (t *Tracker) RemoveStudent(ctx context.Context, conn interfaces.Conn, p types.SessionRefPayload) {
	if p.SessionID == "" || p.Username == "" {
		return
	}

	if fac, ok := t.registry.Facilitator(p.SessionID); ok && fac.ID() != conn.ID() {
		t.log.Warn().Str("session_id", p.SessionID).Str("socket_id", conn.ID()).
			Msg("unauthorized removal attempt")
		return
	}

	session, err := t.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return
	}

	idx := -1
	for i := range session.Students {
		if session.Students[i].Username == p.Username {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	removed := session.Students[idx]
	session.Students = append(session.Students[:idx], session.Students[idx+1:]...)

	if err := t.sessions.UpdateStudents(ctx, p.SessionID, session.Students); err != nil {
		t.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to persist removal")
		return
	}

	if removed.SocketID != "" {
		if studentConn, ok := t.registry.StudentConn(p.SessionID, removed.SocketID); ok {
			t.registry.EmitToConn(studentConn, types.EventRemovedFromSession,
				types.RemovedFromSessionPayload{Reason: "Facilitator removed you."})
			_ = studentConn.Close()
		}
		t.registry.RemoveStudentSocket(p.SessionID, removed.SocketID)
	}

	t.registry.EmitToConn(conn, types.EventStudentListUpdated, session.Students)
	t.log.Info().Str("session_id", p.SessionID).Str("username", p.Username).Msg("student removed")
}

func parseUserAgent(raw string) (browser, osName string) {
	if raw == "" {
		return "Unknown", "Unknown"
	}
	ua := useragent.Parse(raw)
	browser = ua.Name
	osName = ua.OS
	if browser == "" {
		browser = "Other"
	}
	if osName == "" {
		osName = "Other"
	}
	return browser, osName
}

// Session passwords follow the original "word + 4 digits" shape so they stay
// easy to read aloud in a classroom.
var passwordWords = []string{
	"bark", "dust", "fern", "glow", "hill", "lake", "mist", "moss",
	"peak", "pine", "reed", "sand", "snow", "star", "tide", "wave",
}

func generatePassword() string {
	word := passwordWords[rand.Intn(len(passwordWords))]
	return fmt.Sprintf("%s%04d", word, rand.Intn(10000))
}
