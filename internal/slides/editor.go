package slides

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// Editor mutates the ordered slide deck. It is status-agnostic — lifecycle
// and identity checks belong to the caller — but the sentinel invariant is
// enforced here: the begin and end slides can never be inserted after,
// deleted, or moved.
type Editor struct {
	sessions interfaces.SessionStore
	registry *registry.Registry
	log      zerolog.Logger
}

// NewEditor creates a slide deck editor.
func NewEditor(sessions interfaces.SessionStore, reg *registry.Registry, log zerolog.Logger) *Editor {
	return &Editor{
		sessions: sessions,
		registry: reg,
		log:      log.With().Str("component", "slides").Logger(),
	}
}

// Insert creates a content slide with a slideId above the deck's current
// maximum and the next displayNumber above the current maximum. The two
// counters are independent: slideIds identify, displayNumbers count content
// slides only. The slide goes after afterSlideID when given, otherwise (or
// when the reference is gone) just before the trailing sentinel.
func (e *Editor) Insert(ctx context.Context, p types.InsertSlidePayload) error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}

	session, err := e.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return err
	}

	maxSlideID := 0
	maxDisplay := 0
	for _, s := range session.Slides {
		if s.SlideID > maxSlideID {
			maxSlideID = s.SlideID
		}
		if s.DisplayNumber != nil && *s.DisplayNumber > maxDisplay {
			maxDisplay = *s.DisplayNumber
		}
	}

	display := maxDisplay + 1
	slide := types.Slide{
		SlideID:       maxSlideID + 1,
		Kind:          types.SlideContent,
		DisplayNumber: &display,
		Assets:        []types.Asset{},
		CreatedAt:     time.Now(),
	}

	insertAt := e.endSentinelIndex(session.Slides)
	if p.AfterSlideID != nil {
		found := false
		for i, s := range session.Slides {
			if s.SlideID != *p.AfterSlideID {
				continue
			}
			if s.IsSentinel() {
				return ErrSentinelTarget
			}
			insertAt = i + 1
			found = true
			break
		}
		if !found {
			e.log.Warn().Int("after_slide_id", *p.AfterSlideID).Str("session_id", p.SessionID).
				Msg("reference slide not found, appending")
		}
	}

	session.Slides = append(session.Slides, types.Slide{})
	copy(session.Slides[insertAt+1:], session.Slides[insertAt:])
	session.Slides[insertAt] = slide

	if err := e.persistAndEmit(ctx, p.SessionID, session.Slides); err != nil {
		return err
	}
	e.log.Info().Int("slide_id", slide.SlideID).Str("session_id", p.SessionID).Msg("slide inserted")
	return nil
}

// Delete removes a content slide by slideId. Surviving displayNumbers are
// not renumbered: numbers identify slides, they do not count them.
func (e *Editor) Delete(ctx context.Context, p types.DeleteSlidePayload) error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}

	session, err := e.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return err
	}

	idx := -1
	for i, s := range session.Slides {
		if s.SlideID == p.SlideID {
			if s.IsSentinel() {
				return ErrSentinelTarget
			}
			idx = i
			break
		}
	}
	if idx == -1 {
		e.log.Warn().Int("slide_id", p.SlideID).Str("session_id", p.SessionID).
			Msg("delete for unknown slide")
		return ErrSlideNotFound
	}

	session.Slides = append(session.Slides[:idx], session.Slides[idx+1:]...)

	if err := e.persistAndEmit(ctx, p.SessionID, session.Slides); err != nil {
		return err
	}
	e.log.Info().Int("slide_id", p.SlideID).Str("session_id", p.SessionID).Msg("slide deleted")
	return nil
}

// UpdateDetails replaces a slide's free-text details and, when supplied, its
// assets list.
func (e *Editor) UpdateDetails(ctx context.Context, p types.UpdateSlideDetailsPayload) error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}

	session, err := e.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return err
	}

	var slide *types.Slide
	for i := range session.Slides {
		if session.Slides[i].SlideID == p.SlideID {
			slide = &session.Slides[i]
			break
		}
	}
	if slide == nil {
		e.log.Warn().Int("slide_id", p.SlideID).Str("session_id", p.SessionID).
			Msg("update for unknown slide")
		return ErrSlideNotFound
	}

	if p.Details != nil {
		slide.Details = *p.Details
	}
	if p.Assets != nil {
		slide.Assets = p.Assets
	}

	if err := e.persistAndEmit(ctx, p.SessionID, session.Slides); err != nil {
		return err
	}
	e.log.Info().Int("slide_id", p.SlideID).Str("session_id", p.SessionID).Msg("slide updated")
	return nil
}

// Reorder replaces the deck with the caller-supplied order. The supplied
// array must be a true permutation of the stored one (slideId set equality,
// not just matching length) and must keep the begin sentinel first and the
// end sentinel last.
func (e *Editor) Reorder(ctx context.Context, p types.ReorderSlidesPayload) error {
	if p.SessionID == "" {
		return ErrMissingSessionID
	}

	session, err := e.sessions.GetSession(ctx, p.SessionID)
	if err != nil {
		return err
	}

	if !isPermutation(session.Slides, p.Slides) {
		e.log.Warn().Str("session_id", p.SessionID).Msg("reorder is not a permutation of the stored deck")
		return ErrInvalidReorder
	}

	if len(p.Slides) > 0 {
		first, last := p.Slides[0], p.Slides[len(p.Slides)-1]
		if first.Kind != types.SlideBegin || last.Kind != types.SlideEnd {
			return ErrSentinelTarget
		}
	}

	if err := e.persistAndEmit(ctx, p.SessionID, p.Slides); err != nil {
		return err
	}
	e.log.Info().Str("session_id", p.SessionID).Msg("slides reordered")
	return nil
}

// persistAndEmit writes the whole deck and broadcasts it to the session room
// and the facilitator socket. Delivery is strictly room-scoped.
func (e *Editor) persistAndEmit(ctx context.Context, sessionID string, deck []types.Slide) error {
	if err := e.sessions.UpdateSlides(ctx, sessionID, deck); err != nil {
		return err
	}

	payload := types.SlidesUpdatedPayload{SessionID: sessionID, Slides: deck}
	e.registry.EmitToRoom(sessionID, types.EventSlidesUpdated, payload)
	e.registry.EmitToFacilitator(sessionID, types.EventSlidesUpdated, payload)
	return nil
}

func (e *Editor) endSentinelIndex(deck []types.Slide) int {
	for i := len(deck) - 1; i >= 0; i-- {
		if deck[i].Kind == types.SlideEnd {
			return i
		}
	}
	return len(deck)
}

func isPermutation(stored, supplied []types.Slide) bool {
	if len(stored) != len(supplied) {
		return false
	}
	ids := make(map[int]int, len(stored))
	for _, s := range stored {
		ids[s.SlideID]++
	}
	for _, s := range supplied {
		ids[s.SlideID]--
		if ids[s.SlideID] < 0 {
			return false
		}
	}
	return true
}
