package socket

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jhughescu/dev-cms/internal/broadcast"
	"github.com/jhughescu/dev-cms/internal/presence"
	"github.com/jhughescu/dev-cms/internal/registry"
	"github.com/jhughescu/dev-cms/internal/slides"
	"github.com/jhughescu/dev-cms/pkg/interfaces"
	"github.com/jhughescu/dev-cms/pkg/types"
)

// mockSessionStore holds sessions in a map and records deck writes and
// deletions.
type mockSessionStore struct {
	mu           sync.Mutex
	sessions     map[string]*types.Session
	slidesWrites int
	deleted      []string
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*types.Session)}
}

func (m *mockSessionStore) CreateSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *mockSessionStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		copied := *s
		copied.Slides = append([]types.Slide(nil), s.Slides...)
		return &copied, nil
	}
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockSessionStore) FindByStudentSocket(ctx context.Context, socketID string) (*types.Session, error) {
	return nil, interfaces.ErrSessionNotFound
}

func (m *mockSessionStore) UpdateStudents(ctx context.Context, id string, students []types.Student) error {
	return nil
}

func (m *mockSessionStore) UpdateSlides(ctx context.Context, id string, deck []types.Slide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	s.Slides = deck
	m.slidesWrites++
	return nil
}

func (m *mockSessionStore) ApplyBroadcast(ctx context.Context, id string, rawAssets []types.Asset, state []string) (*types.Session, error) {
	return m.GetSession(ctx, id)
}

func (m *mockSessionStore) SetStatus(ctx context.Context, id, status string) error { return nil }

func (m *mockSessionStore) ArchiveForFacilitator(ctx context.Context, facilitator string) (int, error) {
	return 0, nil
}

func (m *mockSessionStore) SetTextContent(ctx context.Context, id, text string) error { return nil }

func (m *mockSessionStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return interfaces.ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockSessionStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}

func (m *mockSessionStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockSessionStore) Close() error                          { return nil }

// mockFileStore resolves nothing.
type mockFileStore struct{}

func (m *mockFileStore) GetByID(ctx context.Context, id string) (*types.FileRecord, error) {
	return nil, interfaces.ErrFileNotFound
}

func (m *mockFileStore) GetByURL(ctx context.Context, url string) (*types.FileRecord, error) {
	return nil, interfaces.ErrFileNotFound
}

func (m *mockFileStore) Populate(ctx context.Context, ids []string) ([]*types.FileRecord, error) {
	return nil, nil
}

func (m *mockFileStore) CreateFile(ctx context.Context, f *types.FileRecord) error { return nil }

type mockConn struct {
	mu     sync.Mutex
	id     string
	frames []map[string]interface{}
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, v.(map[string]interface{}))
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, f := range m.frames {
		out = append(out, f["event"].(string))
	}
	return out
}

func (m *mockConn) countEvent(name string) int {
	n := 0
	for _, e := range m.events() {
		if e == name {
			n++
		}
	}
	return n
}

type handlerFixture struct {
	handler *Handler
	store   *mockSessionStore
	reg     *registry.Registry
	facConn *mockConn
	student *mockConn
}

// newHandlerFixture builds a handler over one session with a registered
// facilitator socket and one student in the room.
func newHandlerFixture(status string) *handlerFixture {
	store := newMockSessionStore()
	session := types.NewSession("class-1", "alice", "")
	session.Status = status
	if status == types.StatusArchived {
		session.Archived = true
	}
	store.sessions["class-1"] = session

	files := &mockFileStore{}
	reg := registry.New(zerolog.Nop())
	facConn := &mockConn{id: "fac"}
	student := &mockConn{id: "s1"}
	reg.SetFacilitator("class-1", facConn)
	reg.AddStudent("class-1", student)

	tracker := presence.NewTracker(store, files, reg, zerolog.Nop())
	broadcaster := broadcast.NewBroadcaster(store, files, reg, zerolog.Nop())
	editor := slides.NewEditor(store, reg, zerolog.Nop())
	handler := NewHandler(tracker, broadcaster, editor, store, reg, 100, zerolog.Nop())

	return &handlerFixture{handler: handler, store: store, reg: reg, facConn: facConn, student: student}
}

func TestSlideEditOnArchivedSessionLocked(t *testing.T) {
	f := newHandlerFixture(types.StatusArchived)
	ctx := context.Background()

	if f.handler.guardSlideEdit(ctx, f.facConn, "class-1") {
		t.Fatal("archived session must fail the slide edit guard")
	}

	if f.facConn.countEvent(types.EventSessionLocked) != 1 {
		t.Errorf("requester must get exactly one sessionLocked notice, got %v", f.facConn.events())
	}
	if len(f.student.events()) != 0 {
		t.Error("the room must not see the locked notice")
	}
	if f.store.slidesWrites != 0 {
		t.Error("the deck must be untouched")
	}
	if len(f.store.sessions["class-1"].Slides) != 2 {
		t.Error("the stored deck must keep only its sentinels")
	}
}

func TestSlideEditFromNonFacilitatorSocketDropped(t *testing.T) {
	f := newHandlerFixture(types.StatusActive)
	ctx := context.Background()

	mallory := &mockConn{id: "mal"}
	if f.handler.guardSlideEdit(ctx, mallory, "class-1") {
		t.Fatal("non-facilitator socket must fail the slide edit guard")
	}

	if len(mallory.events()) != 0 {
		t.Error("unauthorized edits are dropped with no response at all")
	}
	if len(f.student.events()) != 0 || len(f.facConn.events()) != 0 {
		t.Error("nothing may be emitted for an unauthorized edit")
	}
	if f.store.slidesWrites != 0 {
		t.Error("the deck must be untouched")
	}
}

func TestSlideEditFromStudentSocketDropped(t *testing.T) {
	f := newHandlerFixture(types.StatusActive)

	// A socket that is in the room but not the facilitator slot is still
	// unauthorized.
	if f.handler.guardSlideEdit(context.Background(), f.student, "class-1") {
		t.Fatal("student socket must fail the slide edit guard")
	}
	if len(f.student.events()) != 0 {
		t.Error("the student must get no response")
	}
}

func TestSlideEditGuardUnknownSession(t *testing.T) {
	f := newHandlerFixture(types.StatusActive)
	ghost := &mockConn{id: "g-fac"}
	f.reg.SetFacilitator("ghost", ghost)

	if f.handler.guardSlideEdit(context.Background(), ghost, "ghost") {
		t.Fatal("unknown session must fail the slide edit guard")
	}
	if len(ghost.events()) != 0 {
		t.Error("unknown sessions are dropped silently")
	}
}

func TestSlideEditGuardPassesOnLiveSession(t *testing.T) {
	f := newHandlerFixture(types.StatusActive)
	ctx := context.Background()

	if !f.handler.guardSlideEdit(ctx, f.facConn, "class-1") {
		t.Fatal("facilitator socket on a live session must pass the guard")
	}

	// The guarded path reaches the editor and persists the deck.
	if err := f.handler.editor.Insert(ctx, types.InsertSlidePayload{SessionID: "class-1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if f.store.slidesWrites != 1 {
		t.Errorf("expected one deck write, got %d", f.store.slidesWrites)
	}
}

func TestResetSessionFacilitatorGated(t *testing.T) {
	f := newHandlerFixture(types.StatusActive)
	ctx := context.Background()

	mallory := &mockConn{id: "mal"}
	f.handler.resetSession(ctx, mallory, types.SessionRefPayload{SessionID: "class-1"})

	if len(f.store.deleted) != 0 {
		t.Fatal("non-facilitator reset must not delete the session")
	}
	if len(mallory.events()) != 0 || len(f.student.events()) != 0 {
		t.Error("non-facilitator reset is dropped silently")
	}
}

func TestResetSessionDeletesAndNotifies(t *testing.T) {
	f := newHandlerFixture(types.StatusArchived)
	ctx := context.Background()

	f.handler.resetSession(ctx, f.facConn, types.SessionRefPayload{SessionID: "class-1"})

	if len(f.store.deleted) != 1 || f.store.deleted[0] != "class-1" {
		t.Fatalf("expected the session deleted, got %v", f.store.deleted)
	}
	if f.student.countEvent(types.EventSessionReset) != 1 {
		t.Errorf("room must get sessionReset, got %v", f.student.events())
	}
	if f.facConn.countEvent(types.EventSessionReset) != 1 {
		t.Errorf("requester must get sessionReset, got %v", f.facConn.events())
	}
	if f.reg.Stats()["sessions"] != 0 {
		t.Error("registry entry must be removed on reset")
	}
}
