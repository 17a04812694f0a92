package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	events []OutboundEvent
	closed bool
	full   bool
}

func (f *fakeConn) Send(ev OutboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	if f.full {
		return errors.New("send buffer full")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) named(event string) []OutboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OutboundEvent
	for _, ev := range f.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeVerifier map[string]Identity

func (v fakeVerifier) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := v[token]
	if !ok {
		return Identity{}, errors.New("signature is invalid")
	}
	return id, nil
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type fakeJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *fakeJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	return nil
}

func (j *fakeJournal) ops() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Op)
	}
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	changes []string
}

func (s *fakeSink) PresenceChanged(principalID string, status PresenceStatus, _ time.Time) {
	s.mu.Lock()
	s.changes = append(s.changes, principalID+":"+string(status))
	s.mu.Unlock()
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	*Coordinator
	store   *MemoryPrincipalStore
	journal *fakeJournal
	sink    *fakeSink
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := NewMemoryPrincipalStore(
		Principal{ID: "user1", DisplayName: "John Doe", Avatar: "/static/avatars/1.png"},
		Principal{ID: "user2", DisplayName: "Jane Smith"},
		Principal{ID: "user3", DisplayName: "Bob Lee"},
		Principal{ID: "user4", DisplayName: "Alice Wu"},
	)
	h := &harness{
		store:   store,
		journal: &fakeJournal{},
		sink:    &fakeSink{},
		clock:   newFakeClock(),
	}
	h.Coordinator = NewCoordinator(Deps{
		Verifier: fakeVerifier{
			"tok-user1": {PrincipalID: "user1"},
			"tok-user2": {PrincipalID: "user2"},
			"tok-user3": {PrincipalID: "user3"},
			"tok-user4": {PrincipalID: "user4"},
			"tok-ghost": {PrincipalID: "ghost"},
		},
		Principals: store,
		IDs:        &seqIDs{},
		Presence:   h.sink,
		Journal:    h.journal,
		Settings:   Settings{TypingTimeout: 3 * time.Second, MaxBodyLength: 20},
	})
	h.Coordinator.now = h.clock.Now
	h.Coordinator.typing.now = h.clock.Now
	h.Coordinator.rooms.now = h.clock.Now

	require.NoError(t, h.SeedRooms([]RoomSpec{
		{ID: "general", Name: "General", Kind: RoomChannel, CreatedBy: "user1", Participants: []string{"user2", "user3"}},
		{ID: "dev-team", Name: "Dev Team", Kind: RoomGroup, CreatedBy: "user1"},
		{ID: "secret", Name: "Secret", Kind: RoomGroup, CreatedBy: "user2", IsPrivate: true},
	}))
	return h
}

func (h *harness) connect(sessionID string) *fakeConn {
	conn := &fakeConn{}
	h.Connect(sessionID, conn)
	return conn
}

// login 建立连接并认证，返回前清空已收到的事件
func (h *harness) login(t *testing.T, sessionID, principalID string) *fakeConn {
	t.Helper()
	conn := h.connect(sessionID)
	_, err := h.Authenticate(context.Background(), sessionID, "tok-"+principalID)
	require.NoError(t, err)
	conn.reset()
	return conn
}

func (h *harness) join(t *testing.T, sessionID, roomID string) {
	t.Helper()
	_, err := h.JoinRoom(context.Background(), sessionID, roomID)
	require.NoError(t, err)
}

func (h *harness) dispatch(sessionID, frame string) {
	h.Dispatch(context.Background(), sessionID, []byte(frame))
}

func resetAll(conns ...*fakeConn) {
	for _, c := range conns {
		c.reset()
	}
}

func errorCode(t *testing.T, conn *fakeConn) ErrorPayload {
	t.Helper()
	errs := conn.named(EventError)
	require.NotEmpty(t, errs, "expected an error event")
	payload, ok := errs[len(errs)-1].Data.(ErrorPayload)
	require.True(t, ok)
	return payload
}
