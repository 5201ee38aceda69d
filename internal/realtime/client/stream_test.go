package client

import (
	"errors"
	"testing"
	"time"

	"rentme-realtime/internal/domain/chat"
)

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func permutations(in []chat.Message) [][]chat.Message {
	if len(in) <= 1 {
		return [][]chat.Message{append([]chat.Message(nil), in...)}
	}
	var out [][]chat.Message
	for i := range in {
		rest := append(append([]chat.Message(nil), in[:i]...), in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]chat.Message{in[i]}, p...))
		}
	}
	return out
}

func TestStreamOrderIndependentOfArrival(t *testing.T) {
	msgs := []chat.Message{
		peerMessage("b", "c1", "u2", "two", time.Second),
		peerMessage("a", "c1", "u2", "one", time.Second),
		peerMessage("c", "c1", "u1", "three", 2*time.Second),
		peerMessage("z", "c1", "u2", "zero", 0),
	}
	want := []string{"z", "a", "b", "c"}
	for _, perm := range permutations(msgs) {
		st := newStream("c1", "u1")
		for _, m := range perm {
			if _, err := st.Append(m); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		got := ids(st.Messages())
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order %v for arrival %v, want %v", got, ids(perm), want)
			}
		}
	}
}

func TestStreamAppendIsIdempotent(t *testing.T) {
	st := newStream("c1", "u1")
	m := peerMessage("m1", "c1", "u2", "hi", 0)
	if changed, _ := st.Append(m); !changed {
		t.Fatal("first append should change the stream")
	}
	for i := 0; i < 3; i++ {
		if changed, err := st.Append(m); changed || err != nil {
			t.Fatalf("duplicate append changed=%v err=%v", changed, err)
		}
	}
	if st.Len() != 1 {
		t.Fatalf("len = %d", st.Len())
	}

	read := m
	read.IsRead = true
	if changed, _ := st.Append(read); !changed {
		t.Fatal("read upgrade should change the stream")
	}
	if changed, _ := st.Append(m); changed {
		t.Fatal("isRead must not go back to false")
	}
	if got, _ := st.Get("m1"); !got.IsRead {
		t.Fatal("message should stay read")
	}
}

func TestStreamConflictKeepsFirstCopy(t *testing.T) {
	st := newStream("c1", "u1")
	first := peerMessage("m1", "c1", "u2", "original", 0)
	st.Append(first)
	changed, err := st.Append(peerMessage("m1", "c1", "u2", "edited", 0))
	var conflict *MergeConflictError
	if !errors.As(err, &conflict) || changed {
		t.Fatalf("Append = %v, %v; want MergeConflictError", changed, err)
	}
	if conflict.Kept.Content != "original" || conflict.Dropped.Content != "edited" {
		t.Fatalf("conflict = %+v", conflict)
	}
	if got, _ := st.Get("m1"); got.Content != "original" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestStreamReconcileByClientID(t *testing.T) {
	st := newStream("c1", "u1")
	st.AddPending(chat.Message{ID: "local:1", ConversationID: "c1", SenderID: "u1", Content: "hello", CreatedAt: epoch, ClientID: "cid-1"})
	st.AddPending(chat.Message{ID: "local:2", ConversationID: "c1", SenderID: "u1", Content: "hello", CreatedAt: epoch, ClientID: "cid-2"})

	echo := peerMessage("srv-2", "c1", "u1", "hello", time.Second)
	echo.ClientID = "cid-2"
	tempID, ok := st.Reconcile(echo, true)
	if !ok || tempID != "local:2" {
		t.Fatalf("Reconcile = %q, %v", tempID, ok)
	}
	got := ids(st.Messages())
	if len(got) != 2 || got[0] != "local:1" || got[1] != "srv-2" {
		t.Fatalf("messages = %v", got)
	}
	if m, _ := st.Get("srv-2"); m.Status != chat.StatusConfirmed {
		t.Fatalf("status = %q", m.Status)
	}
}

func TestStreamReconcileFallbackPicksNearestTimestamp(t *testing.T) {
	st := newStream("c1", "u1")
	st.AddPending(chat.Message{ID: "local:old", SenderID: "u1", Content: "ok", CreatedAt: epoch})
	st.AddPending(chat.Message{ID: "local:new", SenderID: "u1", Content: "ok", CreatedAt: epoch.Add(5 * time.Second)})
	st.AddPending(chat.Message{ID: "local:other", SenderID: "u1", Content: "different", CreatedAt: epoch.Add(6 * time.Second)})

	echo := peerMessage("srv", "c1", "u1", "ok", 6*time.Second)
	if _, ok := st.Reconcile(echo, false); ok {
		t.Fatal("fallback disabled must not match without clientId")
	}
	tempID, ok := st.Reconcile(echo, true)
	if !ok || tempID != "local:new" {
		t.Fatalf("Reconcile = %q, %v", tempID, ok)
	}
	if len(st.Pending()) != 2 {
		t.Fatalf("pending = %v", ids(st.Pending()))
	}
}

func TestStreamReconcileWhenEchoAlreadyPresent(t *testing.T) {
	st := newStream("c1", "u1")
	echo := peerMessage("srv", "c1", "u1", "ok", time.Second)
	echo.ClientID = "cid"
	st.Append(echo)
	st.AddPending(chat.Message{ID: "local:1", SenderID: "u1", Content: "ok", CreatedAt: epoch, ClientID: "cid"})

	if _, ok := st.Reconcile(echo, true); !ok {
		t.Fatal("expected placeholder match")
	}
	if got := ids(st.Messages()); len(got) != 1 || got[0] != "srv" {
		t.Fatalf("messages = %v", got)
	}
}

func TestStreamUnreadFromPeersIgnoresOwnAndPending(t *testing.T) {
	st := newStream("c1", "u1")
	st.Append(peerMessage("p1", "c1", "u2", "a", 0))
	st.Append(peerMessage("p2", "c1", "u2", "b", time.Second))
	st.Append(peerMessage("o1", "c1", "u1", "c", 2*time.Second))
	st.AddPending(chat.Message{ID: "local:1", SenderID: "u1", Content: "d", CreatedAt: epoch})
	if n := st.UnreadFromPeers(); n != 2 {
		t.Fatalf("unread = %d", n)
	}
	st.MarkRead("p1")
	if st.MarkRead("local:1") {
		t.Fatal("placeholders cannot be marked read")
	}
	if n := st.UnreadFromPeers(); n != 1 {
		t.Fatalf("unread = %d", n)
	}
}
