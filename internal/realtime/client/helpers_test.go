package client

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"rentme-realtime/internal/clock"
	"rentme-realtime/internal/config"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/realtime/wire"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type historyReply struct {
	msgs []chat.Message
	err  error
}

type fakeAPI struct {
	mu            sync.Mutex
	conversations []chat.Conversation
	convErr       error
	history       map[string][]chat.Message
	held          map[string][]chan historyReply
	historyCalls  map[string]int
	notifications []notification.Notification
	readIDs       []string
	readAll       int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:      make(map[string][]chat.Message),
		held:         make(map[string][]chan historyReply),
		historyCalls: make(map[string]int),
	}
}

func (f *fakeAPI) setConversations(convs ...chat.Conversation) {
	f.mu.Lock()
	f.conversations = convs
	f.mu.Unlock()
}

func (f *fakeAPI) setHistory(conversationID string, msgs ...chat.Message) {
	f.mu.Lock()
	f.history[conversationID] = msgs
	f.mu.Unlock()
}

// hold makes the next ListMessages for conversationID wait for a reply.
func (f *fakeAPI) hold(conversationID string) chan historyReply {
	ch := make(chan historyReply, 1)
	f.mu.Lock()
	f.held[conversationID] = append(f.held[conversationID], ch)
	f.mu.Unlock()
	return ch
}

func (f *fakeAPI) calls(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[conversationID]
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	return append([]chat.Conversation(nil), f.conversations...), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	f.historyCalls[conversationID]++
	var wait chan historyReply
	if q := f.held[conversationID]; len(q) > 0 {
		wait = q[0]
		f.held[conversationID] = q[1:]
	}
	msgs := append([]chat.Message(nil), f.history[conversationID]...)
	f.mu.Unlock()
	if wait != nil {
		select {
		case r := <-wait:
			return r.msgs, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return msgs, nil
}

func (f *fakeAPI) ListNotifications(ctx context.Context) ([]notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Notification(nil), f.notifications...), nil
}

func (f *fakeAPI) MarkNotificationRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readIDs = append(f.readIDs, id)
	return nil
}

func (f *fakeAPI) MarkAllNotificationsRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readAll++
	return nil
}

type harness struct {
	t         *testing.T
	clock     *clock.FakeClock
	transport *MemoryTransport
	api       *fakeAPI
	session   *Session
	barriers  int
}

func testConfig() config.Client {
	cfg := config.DefaultClient()
	cfg.ReconnectJitter = 0
	return cfg
}

func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	fake := newFakeAPI()
	h := newHarnessWith(t, userID, fake)
	h.api = fake
	return h
}

// newHarnessWith builds a session reading REST state from api.
func newHarnessWith(t *testing.T, userID string, api API) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     clock.Fake(epoch),
		transport: NewMemoryTransport(),
	}
	seq := 0
	var seqMu sync.Mutex
	h.session = NewSession(userID, h.transport, api, Options{
		Config: testConfig(),
		Clock:  h.clock,
		Logger: obs.Discard(),
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return "id-" + strconv.Itoa(seq)
		},
	})
	t.Cleanup(h.session.Close)
	return h
}

// connect dials and returns the server side after the notification
// subscription has been read.
func (h *harness) connect() *MemoryPeer {
	h.t.Helper()
	if err := h.session.Connect(context.Background(), "token-"+h.session.UserID()); err != nil {
		h.t.Fatalf("Connect: %v", err)
	}
	peer := h.accept()
	expectEvent[wire.JoinNotifications](h.t, peer)
	return peer
}

func (h *harness) accept() *MemoryPeer {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peer, err := h.transport.Accept(ctx)
	if err != nil {
		h.t.Fatalf("Accept: %v", err)
	}
	return peer
}

// open opens conversationID and waits for the join and the history.
func (h *harness) open(peer *MemoryPeer, conversationID string) {
	h.t.Helper()
	if err := h.session.OpenConversation(context.Background(), conversationID); err != nil {
		h.t.Fatalf("OpenConversation: %v", err)
	}
	if peer != nil {
		join := expectEvent[wire.JoinConversation](h.t, peer)
		if join.ConversationID != conversationID {
			h.t.Fatalf("joined %q, want %q", join.ConversationID, conversationID)
		}
	}
	eventually(h.t, "history loaded", func() bool {
		var loaded bool
		_ = h.session.do(func() {
			st := h.session.streams[conversationID]
			loaded = st != nil && st.loaded
		})
		return loaded
	})
}

// inject runs fn on the session loop, as an inbound event would.
func (h *harness) inject(fn func(s *Session)) {
	h.t.Helper()
	if err := h.session.do(func() { fn(h.session) }); err != nil {
		h.t.Fatalf("inject: %v", err)
	}
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	eventually(h.t, "state "+string(want), func() bool { return h.session.State() == want })
}

// barrier waits until the loop has handled everything the peer sent so
// far, using a presence event as a marker.
func (h *harness) barrier(peer *MemoryPeer) {
	h.t.Helper()
	h.barriers++
	marker := "barrier-" + strconv.Itoa(h.barriers)
	if err := peer.Send(wire.UserStatus{UserID: marker, Status: wire.StatusOnline}); err != nil {
		h.t.Fatalf("barrier send: %v", err)
	}
	eventually(h.t, "barrier", func() bool { return h.session.Presence(marker) == wire.StatusOnline })
}

func expectEvent[T wire.Event](t *testing.T, peer *MemoryPeer) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := peer.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	typed, ok := ev.(T)
	if !ok {
		var zero T
		t.Fatalf("got %T (%s), want %T", ev, ev.EventName(), zero)
	}
	return typed
}

func expectNoEvent(t *testing.T, peer *MemoryPeer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev, err := peer.Recv(ctx)
	if err == nil {
		t.Fatalf("unexpected event %s", ev.EventName())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func peerMessage(id, conversationID, sender, content string, at time.Duration) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		Type:           chat.MessageText,
		CreatedAt:      epoch.Add(at),
	}
}

func conversation(id, owner, renter string) chat.Conversation {
	return chat.Conversation{
		ID:        id,
		BookingID: "booking-" + id,
		OwnerID:   owner,
		RenterID:  renter,
		CreatedAt: epoch.Add(-time.Hour),
	}
}

func find(msgs []chat.Message, id string) (chat.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}
