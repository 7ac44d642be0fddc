package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/authz"
	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// Broadcaster implements the content broadcast protocol: the operations that
// mutate a session's visible state and fan the result out to the room, the
// facilitator socket and the admin group. The overwrite invariant lives
// here — currentState always reflects exactly the most recent broadcast.
type Broadcaster struct {
	sessions interfaces.SessionStore
	files    interfaces.FileStore
	registry *registry.Registry
	log      zerolog.Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(sessions interfaces.SessionStore, files interfaces.FileStore, reg *registry.Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		sessions: sessions,
		files:    files,
		registry: reg,
		log:      log.With().Str("component", "broadcast").Logger(),
	}
}

// guard loads the session and applies the mutation contract. Unauthorized
// callers are dropped with nothing but a server-side log line; a locked
// session answers the requester alone with a single notice.
func (b *Broadcaster) guard(ctx context.Context, conn interfaces.Conn, sessionID, requester string) (*types.Session, bool) {
	session, err := b.sessions.GetSession(ctx, sessionID)
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", sessionID).Msg("broadcast for unknown session")
		return nil, false
	}

	switch decision := authz.Check(session, requester); decision {
	case authz.Ok:
		return session, true
	case authz.Unauthorized:
		b.log.Warn().Str("session_id", sessionID).Str("username", requester).
			Msg("unauthorized broadcast attempt")
		return nil, false
	case authz.Locked:
		b.registry.EmitToConn(conn, types.EventSessionLocked, types.SessionLockedPayload{
			SessionID: sessionID,
			Message:   authz.LockedMessage,
		})
		return nil, false
	default:
		b.log.Warn().Str("session_id", sessionID).Stringer("decision", decision).
			Msg("broadcast rejected")
		return nil, false
	}
}

// SendAsset broadcasts a single asset: appends it to the audit log and
// overwrites currentState with its resolved reference.
func (b *Broadcaster) SendAsset(ctx context.Context, conn interfaces.Conn, p types.AssetPayload) {
	if _, ok := b.guard(ctx, conn, p.SessionID, p.Username); !ok {
		return
	}

	state := []string{}
	if id := b.resolveAsset(ctx, p.Asset); id != "" {
		state = append(state, id)
	}

	updated, err := b.sessions.ApplyBroadcast(ctx, p.SessionID, []types.Asset{p.Asset}, state)
	if err != nil {
		b.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to apply broadcast")
		return
	}

	// Asset event first so clients can flag a pending update before the full
	// snapshot lands.
	b.registry.EmitToRoom(p.SessionID, types.EventReceiveAsset, map[string]interface{}{"asset": p.Asset})
	b.fanOutState(ctx, updated)

	b.log.Info().Str("session_id", p.SessionID).Str("asset", p.Asset.OriginalName).
		Msg("asset broadcast")
}

// SendAssetBatch broadcasts a batch: every raw payload is appended to the
// audit log, and currentState becomes the de-duplicated resolved id list in
// first-occurrence order. Exactly one history snapshot covers the batch.
func (b *Broadcaster) SendAssetBatch(ctx context.Context, conn interfaces.Conn, p types.AssetBatchPayload) {
	if len(p.Assets) == 0 {
		return
	}
	if _, ok := b.guard(ctx, conn, p.SessionID, p.Username); !ok {
		return
	}

	seen := make(map[string]bool)
	state := []string{}
	for _, asset := range p.Assets {
		id := b.resolveAsset(ctx, asset)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		state = append(state, id)
	}

	updated, err := b.sessions.ApplyBroadcast(ctx, p.SessionID, p.Assets, state)
	if err != nil {
		b.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to apply batch broadcast")
		return
	}

	b.registry.EmitToRoom(p.SessionID, types.EventReceiveAssetBatch, map[string]interface{}{"assets": p.Assets})
	for _, asset := range p.Assets {
		b.registry.EmitToRoom(p.SessionID, types.EventReceiveAsset, map[string]interface{}{"asset": asset})
	}
	b.fanOutState(ctx, updated)

	b.log.Info().Str("session_id", p.SessionID).Int("count", len(p.Assets)).
		Int("resolved", len(state)).Msg("asset batch broadcast")
}

// Blank clears student screens: currentState becomes empty and one empty
// snapshot is appended. The audit log is untouched.
func (b *Broadcaster) Blank(ctx context.Context, conn interfaces.Conn, p types.SessionRefPayload) {
	if _, ok := b.guard(ctx, conn, p.SessionID, p.Username); !ok {
		return
	}

	updated, err := b.sessions.ApplyBroadcast(ctx, p.SessionID, nil, []string{})
	if err != nil {
		b.log.Error().Err(err).Str("session_id", p.SessionID).Msg("failed to blank session")
		return
	}

	b.fanOutState(ctx, updated)

	// Bare event lets clients clear immediately, ahead of the full snapshot.
	b.registry.EmitToRoom(p.SessionID, types.EventBlankSession, nil)

	b.log.Info().Str("session_id", p.SessionID).Str("username", p.Username).Msg("session blanked")
}

// SendTemplatedContent broadcasts a content tag (begin/end markers and the
// like) to the room. These are not file references: currentState and
// stateHistory are never touched.
func (b *Broadcaster) SendTemplatedContent(ctx context.Context, conn interfaces.Conn, p types.TemplatedContentPayload) {
	if p.SessionID == "" || p.Content == "" {
		return
	}

	session, err := b.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", p.SessionID).Msg("templated content for unknown session")
		return
	}

	if authz.CheckLifecycle(session) == authz.Locked {
		b.registry.EmitToConn(conn, types.EventSessionLocked, types.SessionLockedPayload{
			SessionID: p.SessionID,
			Message:   authz.LockedMessage,
		})
		return
	}

	b.registry.EmitToRoom(p.SessionID, types.EventTemplatedContent, types.TemplatedContentBroadcast{
		SessionID: p.SessionID,
		Content:   p.Content,
		SlideType: p.SlideType,
		Details:   p.Details,
		Timestamp: time.Now(),
	})

	b.log.Info().Str("session_id", p.SessionID).Str("content", p.Content).
		Str("slide_type", p.SlideType).Msg("templated content sent")
}

// resolveAsset maps an asset to its canonical file reference id, preferring
// an embedded id and falling back to a URL lookup. Empty means unresolvable.
func (b *Broadcaster) resolveAsset(ctx context.Context, asset types.Asset) string {
	if asset.ID != "" {
		return asset.ID
	}
	if asset.URL == "" {
		return ""
	}
	record, err := b.files.GetByURL(ctx, asset.URL)
	if err != nil {
		if err != interfaces.ErrFileNotFound {
			b.log.Warn().Err(err).Str("url", asset.URL).Msg("asset lookup by url failed")
		}
		return ""
	}
	return record.ID
}

// fanOutState emits the freshly-read session to everyone who renders it: the
// populated snapshot to the room, the facilitator socket and the admin
// group, plus the reduced sessionStateLite to the room. If population fails
// the unresolved ids go out instead — a degraded snapshot beats none.
func (b *Broadcaster) fanOutState(ctx context.Context, session *types.Session) {
	populated, err := BuildPopulated(ctx, b.files, session)
	if err != nil {
		b.log.Warn().Err(err).Str("session_id", session.SessionID).
			Msg("populate failed, emitting unresolved state")
		fallback := map[string]interface{}{
			"sessionId":    session.SessionID,
			"currentState": session.CurrentState,
			"stateHistory": session.StateHistory,
		}
		b.registry.EmitToRoom(session.SessionID, types.EventSessionState, fallback)
		b.registry.EmitToFacilitator(session.SessionID, types.EventSessionState, fallback)
		b.registry.EmitToAdmins(types.EventSessionState, fallback)
		return
	}

	b.registry.EmitToRoom(session.SessionID, types.EventSessionState, populated)
	b.registry.EmitToRoom(session.SessionID, types.EventSessionStateLite, BuildLite(populated))
	b.registry.EmitToFacilitator(session.SessionID, types.EventSessionState, populated)
	b.registry.EmitToAdmins(types.EventSessionState, populated)
}
