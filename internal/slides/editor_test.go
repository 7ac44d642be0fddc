package slides

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// mockSessionStore holds one session and records deck writes.
type mockSessionStore struct {
	session          *types.Session
	updatedSlides    [][]types.Slide
	shouldFailUpdate bool
}

func (m *mockSessionStore) CreateSession(ctx context.Context, s *types.Session) error { return nil }

func (m *mockSessionStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if m.session == nil || m.session.SessionID != id {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *m.session
	copied.Slides = append([]types.Slide(nil), m.session.Slides...)
	return &copied, nil
}

func (m *mockSessionStore) FindByStudentSocket(ctx context.Context, socketID string) (*types.Session, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockSessionStore) UpdateStudents(ctx context.Context, id string, students []types.Student) error {
	return nil
}

func (m *mockSessionStore) UpdateSlides(ctx context.Context, id string, deck []types.Slide) error {
	if m.shouldFailUpdate {
		return errors.New("update failed")
	}
	m.updatedSlides = append(m.updatedSlides, deck)
	m.session.Slides = deck
	return nil
}

func (m *mockSessionStore) ApplyBroadcast(ctx context.Context, id string, rawAssets []types.Asset, state []string) (*types.Session, error) {
	return m.session, nil
}

func (m *mockSessionStore) SetStatus(ctx context.Context, id, status string) error { return nil }

func (m *mockSessionStore) ArchiveForFacilitator(ctx context.Context, facilitator string) (int, error) {
	return 0, nil
}

func (m *mockSessionStore) SetTextContent(ctx context.Context, id, text string) error { return nil }
func (m *mockSessionStore) DeleteSession(ctx context.Context, id string) error        { return nil }

func (m *mockSessionStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}

func (m *mockSessionStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockSessionStore) Close() error                          { return nil }

func intPtr(v int) *int { return &v }

func deckWith(content ...types.Slide) []types.Slide {
	deck := []types.Slide{{SlideID: 1, Kind: types.SlideBegin}}
	deck = append(deck, content...)
	deck = append(deck, types.Slide{SlideID: 2, Kind: types.SlideEnd})
	return deck
}

func newTestEditor(deck []types.Slide) (*Editor, *mockSessionStore) {
	store := &mockSessionStore{session: &types.Session{
		SessionID: "class-1",
		Slides:    deck,
	}}
	editor := NewEditor(store, registry.New(zerolog.Nop()), zerolog.Nop())
	return editor, store
}

func lastDeck(t *testing.T, store *mockSessionStore) []types.Slide {
	t.Helper()
	if len(store.updatedSlides) == 0 {
		t.Fatal("expected a deck write")
	}
	return store.updatedSlides[len(store.updatedSlides)-1]
}

func TestInsertAppendsBeforeEndSentinel(t *testing.T) {
	editor, store := newTestEditor(deckWith())

	if err := editor.Insert(context.Background(), types.InsertSlidePayload{SessionID: "class-1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deck := lastDeck(t, store)
	if len(deck) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(deck))
	}
	inserted := deck[1]
	if inserted.SlideID != 3 || inserted.Kind != types.SlideContent {
		t.Errorf("expected content slide with slideId 3, got %+v", inserted)
	}
	if inserted.DisplayNumber == nil || *inserted.DisplayNumber != 1 {
		t.Errorf("expected displayNumber 1, got %v", inserted.DisplayNumber)
	}
	if deck[2].Kind != types.SlideEnd {
		t.Error("end sentinel must stay last")
	}
}

func TestInsertAfterSpecificSlide(t *testing.T) {
	editor, store := newTestEditor(deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)},
		types.Slide{SlideID: 4, Kind: types.SlideContent, DisplayNumber: intPtr(2)},
	))

	err := editor.Insert(context.Background(), types.InsertSlidePayload{
		SessionID:    "class-1",
		AfterSlideID: intPtr(3),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deck := lastDeck(t, store)
	if deck[2].SlideID != 5 {
		t.Errorf("expected new slide 5 directly after slide 3, got deck %+v", deck)
	}
	if deck[2].DisplayNumber == nil || *deck[2].DisplayNumber != 3 {
		t.Errorf("expected displayNumber 3, got %v", deck[2].DisplayNumber)
	}
}

func TestInsertAfterSentinelRejected(t *testing.T) {
	editor, store := newTestEditor(deckWith())

	err := editor.Insert(context.Background(), types.InsertSlidePayload{
		SessionID:    "class-1",
		AfterSlideID: intPtr(1),
	})
	if err != ErrSentinelTarget {
		t.Errorf("expected ErrSentinelTarget, got %v", err)
	}
	if len(store.updatedSlides) != 0 {
		t.Error("rejected insert must not write the deck")
	}
}

func TestInsertUnknownReferenceAppends(t *testing.T) {
	editor, store := newTestEditor(deckWith())

	err := editor.Insert(context.Background(), types.InsertSlidePayload{
		SessionID:    "class-1",
		AfterSlideID: intPtr(99),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deck := lastDeck(t, store)
	if deck[1].Kind != types.SlideContent || deck[2].Kind != types.SlideEnd {
		t.Errorf("unknown reference should append before end sentinel, got %+v", deck)
	}
}

func TestInsertAllocatesAboveCurrentMax(t *testing.T) {
	editor, store := newTestEditor(deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)},
		types.Slide{SlideID: 4, Kind: types.SlideContent, DisplayNumber: intPtr(2)},
	))

	if err := editor.Delete(context.Background(), types.DeleteSlidePayload{SessionID: "class-1", SlideID: 3}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := editor.Insert(context.Background(), types.InsertSlidePayload{SessionID: "class-1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deck := lastDeck(t, store)
	for _, s := range deck {
		if s.Kind == types.SlideContent && s.SlideID == 3 {
			t.Error("deleted non-max slideId must not be reused")
		}
	}
	if deck[2].SlideID != 5 {
		t.Errorf("expected new slide to take id 5, got %d", deck[2].SlideID)
	}
}

func TestDeleteKeepsDisplayNumbers(t *testing.T) {
	editor, store := newTestEditor(deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)},
		types.Slide{SlideID: 4, Kind: types.SlideContent, DisplayNumber: intPtr(2)},
		types.Slide{SlideID: 5, Kind: types.SlideContent, DisplayNumber: intPtr(3)},
	))

	if err := editor.Delete(context.Background(), types.DeleteSlidePayload{SessionID: "class-1", SlideID: 4}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	deck := lastDeck(t, store)
	var numbers []int
	for _, s := range deck {
		if s.DisplayNumber != nil {
			numbers = append(numbers, *s.DisplayNumber)
		}
	}
	if len(numbers) != 2 || numbers[0] != 1 || numbers[1] != 3 {
		t.Errorf("surviving display numbers must not be renumbered, got %v", numbers)
	}
}

func TestDeleteSentinelRejected(t *testing.T) {
	editor, store := newTestEditor(deckWith())

	for _, id := range []int{1, 2} {
		err := editor.Delete(context.Background(), types.DeleteSlidePayload{SessionID: "class-1", SlideID: id})
		if err != ErrSentinelTarget {
			t.Errorf("deleting sentinel %d: expected ErrSentinelTarget, got %v", id, err)
		}
	}
	if len(store.updatedSlides) != 0 {
		t.Error("rejected deletes must not write the deck")
	}
}

func TestDeleteUnknownSlide(t *testing.T) {
	editor, _ := newTestEditor(deckWith())
	err := editor.Delete(context.Background(), types.DeleteSlidePayload{SessionID: "class-1", SlideID: 42})
	if err != ErrSlideNotFound {
		t.Errorf("expected ErrSlideNotFound, got %v", err)
	}
}

func TestUpdateDetails(t *testing.T) {
	editor, store := newTestEditor(deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1), Details: "old"},
	))

	details := "new notes"
	err := editor.UpdateDetails(context.Background(), types.UpdateSlideDetailsPayload{
		SessionID: "class-1",
		SlideID:   3,
		Details:   &details,
	})
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}

	deck := lastDeck(t, store)
	if deck[1].Details != "new notes" {
		t.Errorf("expected details updated, got %q", deck[1].Details)
	}
}

func TestUpdateDetailsNilAssetsPreserved(t *testing.T) {
	assets := []types.Asset{{OriginalName: "a.png", URL: "/u/a.png", UploadedAt: time.Now()}}
	editor, store := newTestEditor(deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1), Assets: assets},
	))

	details := "x"
	err := editor.UpdateDetails(context.Background(), types.UpdateSlideDetailsPayload{
		SessionID: "class-1",
		SlideID:   3,
		Details:   &details,
	})
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}

	deck := lastDeck(t, store)
	if len(deck[1].Assets) != 1 {
		t.Error("omitting assets must leave the stored assets untouched")
	}
}

func TestReorder(t *testing.T) {
	stored := deckWith(
		types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)},
		types.Slide{SlideID: 4, Kind: types.SlideContent, DisplayNumber: intPtr(2)},
	)
	editor, store := newTestEditor(stored)

	reordered := []types.Slide{stored[0], stored[2], stored[1], stored[3]}
	err := editor.Reorder(context.Background(), types.ReorderSlidesPayload{
		SessionID: "class-1",
		Slides:    reordered,
	})
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	deck := lastDeck(t, store)
	if deck[1].SlideID != 4 || deck[2].SlideID != 3 {
		t.Errorf("expected swapped content slides, got %+v", deck)
	}
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	stored := deckWith(types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)})
	editor, store := newTestEditor(stored)

	// Same length, but slide 3 replaced by a fabricated slide 9.
	bogus := []types.Slide{stored[0], {SlideID: 9, Kind: types.SlideContent}, stored[2]}
	err := editor.Reorder(context.Background(), types.ReorderSlidesPayload{SessionID: "class-1", Slides: bogus})
	if err != ErrInvalidReorder {
		t.Errorf("expected ErrInvalidReorder, got %v", err)
	}

	short := []types.Slide{stored[0], stored[2]}
	err = editor.Reorder(context.Background(), types.ReorderSlidesPayload{SessionID: "class-1", Slides: short})
	if err != ErrInvalidReorder {
		t.Errorf("expected ErrInvalidReorder for wrong length, got %v", err)
	}

	if len(store.updatedSlides) != 0 {
		t.Error("rejected reorders must not write the deck")
	}
}

func TestReorderRejectsMovedSentinels(t *testing.T) {
	stored := deckWith(types.Slide{SlideID: 3, Kind: types.SlideContent, DisplayNumber: intPtr(1)})
	editor, _ := newTestEditor(stored)

	// Valid permutation, but the end sentinel comes first.
	moved := []types.Slide{stored[2], stored[1], stored[0]}
	err := editor.Reorder(context.Background(), types.ReorderSlidesPayload{SessionID: "class-1", Slides: moved})
	if err != ErrSentinelTarget {
		t.Errorf("expected ErrSentinelTarget, got %v", err)
	}
}

func TestEditorRequiresSessionID(t *testing.T) {
	editor, _ := newTestEditor(deckWith())

	if err := editor.Insert(context.Background(), types.InsertSlidePayload{}); err != ErrMissingSessionID {
		t.Errorf("Insert: expected ErrMissingSessionID, got %v", err)
	}
	if err := editor.Delete(context.Background(), types.DeleteSlidePayload{SlideID: 3}); err != ErrMissingSessionID {
		t.Errorf("Delete: expected ErrMissingSessionID, got %v", err)
	}
	if err := editor.Reorder(context.Background(), types.ReorderSlidesPayload{}); err != ErrMissingSessionID {
		t.Errorf("Reorder: expected ErrMissingSessionID, got %v", err)
	}
}
