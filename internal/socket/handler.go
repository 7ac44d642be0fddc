package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/authz"
	"github.com/jhughescu/dev-cms/internal/broadcast"
	"github.com/jhughescu/dev-cms/internal/presence"
	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/internal/slides"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

const (
	maxMessageSize = 512 * 1024
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
)

// Handler owns the websocket endpoint: it upgrades HTTP requests, runs one
// read loop per connection, and dispatches envelope frames to the presence,
// broadcast and slides components by event name.
type Handler struct {
	tracker     *presence.Tracker
	broadcaster *broadcast.Broadcaster
	editor      *slides.Editor
	sessions    interfaces.SessionStore
	registry    *registry.Registry
	limiter     *RateLimiter
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

// NewHandler creates the websocket handler. rateLimit is events per minute
// per socket.
func NewHandler(tracker *presence.Tracker, broadcaster *broadcast.Broadcaster, editor *slides.Editor,
	sessions interfaces.SessionStore, reg *registry.Registry, rateLimit int, log zerolog.Logger) *Handler {
	return &Handler{
		tracker:     tracker,
		broadcaster: broadcaster,
		editor:      editor,
		sessions:    sessions,
		registry:    reg,
		limiter:     NewRateLimiter(rateLimit),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "socket").Logger(),
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	conn := NewConnection(ws, r.Header.Get("User-Agent"))
	h.log.Info().Str("socket_id", conn.ID()).Str("remote", r.RemoteAddr).Msg("connection established")

	go h.pingLoop(ws, conn)
	h.readLoop(ws, conn)
}

func (h *Handler) readLoop(ws *websocket.Conn, conn *Connection) {
	defer func() {
		h.tracker.Disconnect(context.Background(), conn.ID())
		h.limiter.Forget(conn.ID())
		_ = conn.Close()
		sessionID, role, username := conn.SessionAffiliation()
		h.log.Info().Str("socket_id", conn.ID()).Str("session_id", sessionID).
			Str("role", role).Str("username", username).Msg("connection closed")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("socket_id", conn.ID()).Msg("unexpected close")
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.registry.EmitToConn(conn, types.EventErrorMessage, "Invalid message format")
			continue
		}
		if env.Event == "" {
			continue
		}

		if !h.limiter.Allow(conn.ID()) {
			h.registry.EmitToConn(conn, types.EventErrorMessage, "Rate limit exceeded. Please slow down.")
			continue
		}

		h.dispatch(conn, env)
	}
}

// pingLoop keeps the connection alive from the server side so idle student
// screens are not dropped by intermediaries. WriteControl is safe alongside
// the writer goroutine.
func (h *Handler) pingLoop(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) dispatch(conn *Connection, env types.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch env.Event {
	case types.EventJoinSession:
		var p types.JoinPayload
		if !h.decode(conn, env.Data, &p) {
			return
		}
		conn.SetSessionAffiliation(p.SessionID, p.NormalizedRole(), p.Username)
		h.tracker.Join(ctx, conn, p, conn.UserAgent())

	case types.EventSendAsset:
		var p types.AssetPayload
		if h.decode(conn, env.Data, &p) {
			h.broadcaster.SendAsset(ctx, conn, p)
		}

	case types.EventSendAssetBatch:
		var p types.AssetBatchPayload
		if h.decode(conn, env.Data, &p) {
			h.broadcaster.SendAssetBatch(ctx, conn, p)
		}

	case types.EventSendTemplatedContent:
		var p types.TemplatedContentPayload
		if h.decode(conn, env.Data, &p) {
			h.broadcaster.SendTemplatedContent(ctx, conn, p)
		}

	case types.EventBlankSession:
		var p types.SessionRefPayload
		if h.decode(conn, env.Data, &p) {
			h.broadcaster.Blank(ctx, conn, p)
		}

	case types.EventStudentPing:
		var p types.SessionRefPayload
		if h.decode(conn, env.Data, &p) {
			h.tracker.Ping(ctx, conn, p)
		}

	case types.EventStudentLeave:
		var p types.SessionRefPayload
		if !h.decode(conn, env.Data, &p) {
			return
		}
		ack := h.tracker.Leave(ctx, conn, p)
		if ack.Success {
			conn.ClearSessionAffiliation()
		}
		h.registry.EmitToConn(conn, types.EventStudentLeaveAck, ack)

	case types.EventRemoveStudent:
		var p types.SessionRefPayload
		if h.decode(conn, env.Data, &p) {
			h.tracker.RemoveStudent(ctx, conn, p)
		}

	case types.EventInsertSlide:
		var p types.InsertSlidePayload
		if h.decode(conn, env.Data, &p) && h.guardSlideEdit(ctx, conn, p.SessionID) {
			h.reportEditError(conn, h.editor.Insert(ctx, p))
		}

	case types.EventDeleteSlide:
		var p types.DeleteSlidePayload
		if h.decode(conn, env.Data, &p) && h.guardSlideEdit(ctx, conn, p.SessionID) {
			h.reportEditError(conn, h.editor.Delete(ctx, p))
		}

	case types.EventUpdateSlideDetails:
		var p types.UpdateSlideDetailsPayload
		if h.decode(conn, env.Data, &p) && h.guardSlideEdit(ctx, conn, p.SessionID) {
			h.reportEditError(conn, h.editor.UpdateDetails(ctx, p))
		}

	case types.EventReorderSlides:
		var p types.ReorderSlidesPayload
		if h.decode(conn, env.Data, &p) && h.guardSlideEdit(ctx, conn, p.SessionID) {
			h.reportEditError(conn, h.editor.Reorder(ctx, p))
		}

	case types.EventResetSession:
		var p types.SessionRefPayload
		if h.decode(conn, env.Data, &p) {
			h.resetSession(ctx, conn, p)
		}

	default:
		h.log.Debug().Str("event", env.Event).Str("socket_id", conn.ID()).Msg("unknown event")
	}
}

func (h *Handler) decode(conn interfaces.Conn, raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		h.registry.EmitToConn(conn, types.EventErrorMessage, "Missing event payload")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		h.registry.EmitToConn(conn, types.EventErrorMessage, "Invalid event payload")
		return false
	}
	return true
}

// guardSlideEdit authorizes deck mutations: the requesting socket must be the
// registered facilitator socket for the session, and the session must not be
// archived. Unauthorized edits are dropped silently; a locked session answers
// the requester with a single sessionLocked notice.
func (h *Handler) guardSlideEdit(ctx context.Context, conn interfaces.Conn, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	if !h.registry.IsFacilitatorSocket(sessionID, conn.ID()) {
		h.log.Warn().Str("session_id", sessionID).Str("socket_id", conn.ID()).
			Msg("slide edit from non-facilitator socket")
		return false
	}

	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("slide edit for unknown session")
		return false
	}
	if authz.CheckLifecycle(session) == authz.Locked {
		h.registry.EmitToConn(conn, types.EventSessionLocked, types.SessionLockedPayload{
			SessionID: sessionID,
			Message:   authz.LockedMessage,
		})
		return false
	}
	return true
}

func (h *Handler) reportEditError(conn interfaces.Conn, err error) {
	if err == nil {
		return
	}
	switch err {
	case slides.ErrSlideNotFound, slides.ErrSentinelTarget, slides.ErrInvalidReorder, slides.ErrMissingSessionID:
		h.registry.EmitToConn(conn, types.EventErrorMessage, err.Error())
	default:
		h.log.Error().Err(err).Str("socket_id", conn.ID()).Msg("slide edit failed")
	}
}

// resetSession deletes the session document outright and tells the room it is
// gone. Facilitator-socket gated like deck edits, but allowed on archived
// sessions: resetting a finished session is how a facilitator clears the deck.
func (h *Handler) resetSession(ctx context.Context, conn interfaces.Conn, p types.SessionRefPayload) {
	if p.SessionID == "" {
		return
	}

	if !h.registry.IsFacilitatorSocket(p.SessionID, conn.ID()) {
		h.log.Warn().Str("session_id", p.SessionID).Str("socket_id", conn.ID()).
			Msg("reset from non-facilitator socket")
		return
	}

	if err := h.sessions.DeleteSession(ctx, p.SessionID); err != nil {
		h.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to reset session")
		h.registry.EmitToConn(conn, types.EventErrorMessage, "Failed to reset session")
		return
	}

	payload := map[string]interface{}{"sessionId": p.SessionID}
	h.registry.EmitToRoom(p.SessionID, types.EventSessionReset, payload)
	h.registry.EmitToConn(conn, types.EventSessionReset, payload)
	h.registry.RemoveSession(p.SessionID)

	h.log.Info().Str("session_id", p.SessionID).Msg("session reset")
}
