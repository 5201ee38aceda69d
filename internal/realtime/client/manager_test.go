package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rentme-realtime/internal/clock"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/realtime/wire"
)

type managerRig struct {
	t         *testing.T
	clock     *clock.FakeClock
	transport *MemoryTransport
	manager   *Manager

	mu      sync.Mutex
	changes []StateChange
}

func newManagerRig(t *testing.T, queueLimit int) *managerRig {
	t.Helper()
	r := &managerRig{t: t, clock: clock.Fake(epoch), transport: NewMemoryTransport()}
	backoff := DefaultBackoff()
	backoff.Jitter = 0
	r.manager = NewManager(r.transport, ManagerOptions{
		Backoff:    backoff,
		QueueLimit: queueLimit,
		Clock:      r.clock,
		Logger:     obs.Discard(),
	})
	r.manager.OnStateChange(func(ch StateChange) {
		r.mu.Lock()
		r.changes = append(r.changes, ch)
		r.mu.Unlock()
	})
	t.Cleanup(r.manager.Disconnect)
	return r
}

func (r *managerRig) accept() *MemoryPeer {
	r.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peer, err := r.transport.Accept(ctx)
	if err != nil {
		r.t.Fatalf("Accept: %v", err)
	}
	return peer
}

func (r *managerRig) reconnectDelays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Duration
	for _, ch := range r.changes {
		if ch.State == StateReconnecting {
			out = append(out, ch.Delay)
		}
	}
	return out
}

func (r *managerRig) last() StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return StateChange{}
	}
	return r.changes[len(r.changes)-1]
}

func (r *managerRig) waitState(want State) {
	r.t.Helper()
	eventually(r.t, "state "+string(want), func() bool { return r.manager.State() == want })
}

func sendEvent(conv, content string) wire.SendMessage {
	return wire.SendMessage{ConversationID: conv, Content: content, MessageType: chat.MessageText, ClientID: "cid-" + content}
}

func TestManagerReplaysSubscriptionsBeforeQueuedEmits(t *testing.T) {
	r := newManagerRig(t, 8)
	m := r.manager

	m.Join("c1")
	m.Join("c2")
	m.Join("c1")
	m.SubscribeNotifications()
	if err := m.EmitReliable(sendEvent("c1", "queued")); err != nil {
		t.Fatalf("EmitReliable offline: %v", err)
	}
	if err := m.Emit(wire.Typing{ConversationID: "c1", IsTyping: true}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit offline = %v, want ErrNotConnected", err)
	}
	if m.QueueLen() != 1 {
		t.Fatalf("queue = %d", m.QueueLen())
	}

	if err := m.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()
	if join := expectEvent[wire.JoinConversation](t, peer); join.ConversationID != "c1" {
		t.Fatalf("first join = %s", join.ConversationID)
	}
	if join := expectEvent[wire.JoinConversation](t, peer); join.ConversationID != "c2" {
		t.Fatalf("second join = %s", join.ConversationID)
	}
	expectEvent[wire.JoinNotifications](t, peer)
	if sm := expectEvent[wire.SendMessage](t, peer); sm.Content != "queued" {
		t.Fatalf("flushed %q", sm.Content)
	}
	expectNoEvent(t, peer)
	if m.State() != StateConnected || m.QueueLen() != 0 {
		t.Fatalf("state=%s queue=%d", m.State(), m.QueueLen())
	}

	m.Leave("c1")
	if leave := expectEvent[wire.LeaveConversation](t, peer); leave.ConversationID != "c1" {
		t.Fatalf("left %s", leave.ConversationID)
	}
	m.Leave("c1")
	expectNoEvent(t, peer)
	if rooms := m.Rooms(); len(rooms) != 1 || rooms[0] != "c2" {
		t.Fatalf("rooms = %v", rooms)
	}
}

func TestManagerReconnectsWithBackoffAndResubscribes(t *testing.T) {
	r := newManagerRig(t, 8)
	m := r.manager
	m.Join("c1")
	if err := m.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()
	expectEvent[wire.JoinConversation](t, peer)

	r.transport.FailNext(errors.New("connection refused"))
	r.transport.FailNext(errors.New("connection refused"))
	peer.Drop()
	r.waitState(StateReconnecting)
	if err := m.EmitReliable(sendEvent("c1", "while-offline")); err != nil {
		t.Fatalf("EmitReliable: %v", err)
	}

	r.clock.Advance(500 * time.Millisecond)
	r.clock.Advance(time.Second)
	if m.State() != StateReconnecting {
		t.Fatalf("state = %s after two failed dials", m.State())
	}
	r.clock.Advance(2 * time.Second)
	if m.State() != StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}

	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	got := r.reconnectDelays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delays = %v, want %v", got, want)
		}
	}
	if r.transport.Dials() != 4 {
		t.Fatalf("dials = %d", r.transport.Dials())
	}

	next := r.accept()
	if join := expectEvent[wire.JoinConversation](t, next); join.ConversationID != "c1" {
		t.Fatalf("rejoined %s", join.ConversationID)
	}
	if sm := expectEvent[wire.SendMessage](t, next); sm.Content != "while-offline" {
		t.Fatalf("flushed %q", sm.Content)
	}

	next.Drop()
	r.waitState(StateReconnecting)
	if d := r.reconnectDelays(); d[len(d)-1] != 500*time.Millisecond {
		t.Fatalf("attempt counter not reset after connect: %v", d)
	}
}

func TestManagerAuthRejectionDoesNotRetry(t *testing.T) {
	r := newManagerRig(t, 8)
	r.transport.Authorize(func(string) error { return errors.New("expired") })

	err := r.manager.Connect(context.Background(), "tok")
	if !IsAuthError(err) {
		t.Fatalf("Connect = %v, want AuthError", err)
	}
	if r.manager.State() != StateDisconnected {
		t.Fatalf("state = %s", r.manager.State())
	}
	if r.clock.PendingCount() != 0 {
		t.Fatalf("retry scheduled after auth failure")
	}
	r.clock.Advance(time.Minute)
	if r.transport.Dials() != 1 {
		t.Fatalf("dials = %d", r.transport.Dials())
	}
	if last := r.last(); last.State != StateDisconnected || !IsAuthError(last.Err) {
		t.Fatalf("last change = %+v", last)
	}
}

func TestManagerRevokedConnectionStops(t *testing.T) {
	r := newManagerRig(t, 8)
	if err := r.manager.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()
	peer.Revoke()
	r.waitState(StateDisconnected)
	if !IsAuthError(r.last().Err) {
		t.Fatalf("last change = %+v", r.last())
	}
	if r.clock.PendingCount() != 0 {
		t.Fatal("retry scheduled after revocation")
	}
}

func TestManagerUnauthorizedServerErrorEndsSession(t *testing.T) {
	r := newManagerRig(t, 8)
	if err := r.manager.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()
	if err := peer.Send(wire.ServerError{Code: wire.CodeUnauthorized, Message: "token expired"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	r.waitState(StateDisconnected)
	select {
	case <-peer.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("socket left open")
	}
	var authErr *AuthError
	if !errors.As(r.last().Err, &authErr) || authErr.Reason != "token expired" {
		t.Fatalf("last change = %+v", r.last())
	}
}

func TestManagerQueueLimit(t *testing.T) {
	r := newManagerRig(t, 2)
	for _, c := range []string{"a", "b"} {
		if err := r.manager.EmitReliable(sendEvent("c1", c)); err != nil {
			t.Fatalf("EmitReliable(%s): %v", c, err)
		}
	}
	if err := r.manager.EmitReliable(sendEvent("c1", "c")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third emit = %v, want ErrQueueFull", err)
	}
	if err := r.manager.EmitReliable(wire.SendMessage{ConversationID: "c1"}); !errors.Is(err, wire.ErrMalformedEvent) {
		t.Fatalf("invalid emit = %v", err)
	}
}

func TestManagerDisconnectCancelsRetry(t *testing.T) {
	r := newManagerRig(t, 8)
	if err := r.manager.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()
	peer.Drop()
	r.waitState(StateReconnecting)

	r.manager.Disconnect()
	r.clock.Advance(time.Minute)
	if r.manager.State() != StateDisconnected || r.transport.Dials() != 1 {
		t.Fatalf("state=%s dials=%d", r.manager.State(), r.transport.Dials())
	}

	if err := r.manager.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	r.accept()
	if r.manager.State() != StateConnected {
		t.Fatalf("state = %s", r.manager.State())
	}
}

func TestManagerDispatchSkipsMalformedFrames(t *testing.T) {
	r := newManagerRig(t, 8)
	var (
		mu  sync.Mutex
		got []string
	)
	r.manager.Handle(wire.EvtNewMessage, func(ev wire.Event) {
		mu.Lock()
		got = append(got, ev.(wire.NewMessage).ID)
		mu.Unlock()
	})
	if err := r.manager.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer := r.accept()

	peer.Send(wire.NewMessage{Message: peerMessage("m1", "c1", "u2", "a", 0)})
	peer.SendRaw([]byte(`{"event":"new-message","data":"oops"}`))
	peer.SendRaw([]byte(`{"event":"no-such-event","data":{}}`))
	peer.SendRaw([]byte(`not json`))
	peer.Send(wire.NewMessage{Message: peerMessage("m2", "c1", "u2", "b", time.Second)})

	eventually(t, "two messages", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("dispatched %v", got)
	}
	if r.manager.State() != StateConnected {
		t.Fatalf("state = %s", r.manager.State())
	}
}
