package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	appoutbox "rentme-realtime/internal/app/outbox"
	"rentme-realtime/internal/clock"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConversationPerBooking(t *testing.T) {
	ctx := context.Background()
	store := NewMessagingStore()
	first, err := store.CreateConversation(ctx, "b1", "host", "guest", epoch)
	if err != nil {
		t.Fatal(err)
	}
	again, err := store.CreateConversation(ctx, "b1", "someone", "else", epoch.Add(time.Hour))
	if err != nil || again.ID != first.ID || again.OwnerID != "host" {
		t.Fatalf("booking must map to one conversation: %+v err=%v", again, err)
	}
	found, err := store.FindConversationByBooking(ctx, "b1")
	if err != nil || found.ID != first.ID {
		t.Fatalf("find = %+v err=%v", found, err)
	}
	if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMessagesStayOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMessagingStore()
	conv, _ := store.CreateConversation(ctx, "b1", "host", "guest", epoch)
	add := func(id string, at time.Duration, sender string) {
		t.Helper()
		if _, err := store.AddMessage(ctx, chat.Message{ID: id, ConversationID: conv.ID, SenderID: sender, Content: id, CreatedAt: epoch.Add(at)}); err != nil {
			t.Fatal(err)
		}
	}
	add("m2", 2*time.Minute, "host")
	add("m1", time.Minute, "guest")
	add("m3", 3*time.Minute, "guest")

	all, err := store.ListMessages(ctx, conv.ID, 0, "")
	if err != nil || len(all) != 3 || all[0].ID != "m1" || all[2].ID != "m3" {
		t.Fatalf("list = %v err=%v", all, err)
	}
	page, err := store.ListMessages(ctx, conv.ID, 1, "m3")
	if err != nil || len(page) != 1 || page[0].ID != "m2" {
		t.Fatalf("page = %v err=%v", page, err)
	}
	if _, err := store.ListMessages(ctx, conv.ID, 1, "nope"); !errors.Is(err, chat.ErrMessageNotFound) {
		t.Fatalf("err = %v", err)
	}

	got, _ := store.GetConversation(ctx, conv.ID)
	if got.LastMessage == nil || got.LastMessage.ID != "m3" {
		t.Fatalf("last message = %+v", got.LastMessage)
	}
	if n, _ := store.CountUnread(ctx, conv.ID, "host"); n != 2 {
		t.Fatalf("host unread = %d", n)
	}
	if err := store.MarkMessageRead(ctx, conv.ID, "m3"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetConversation(ctx, conv.ID)
	if !got.LastMessage.IsRead {
		t.Fatal("last message read flag not mirrored")
	}
	if n, _ := store.CountUnread(ctx, conv.ID, "host"); n != 1 {
		t.Fatalf("host unread = %d", n)
	}
}

func TestFindMessageByClientID(t *testing.T) {
	ctx := context.Background()
	store := NewMessagingStore()
	conv, _ := store.CreateConversation(ctx, "b1", "host", "guest", epoch)
	if _, err := store.AddMessage(ctx, chat.Message{ConversationID: conv.ID, SenderID: "guest", ClientID: "tmp-1", Content: "hi", CreatedAt: epoch}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindMessageByClientID(ctx, conv.ID, "guest", "tmp-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindMessageByClientID(ctx, conv.ID, "host", "tmp-1"); !errors.Is(err, chat.ErrMessageNotFound) {
		t.Fatalf("client ids are scoped per sender: err = %v", err)
	}
}

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	store := NewNotificationStore()
	n := notification.Notification{ID: "n1", UserID: "alice", Type: notification.TypeSystem, Title: "t", CreatedAt: epoch}
	if ok, _ := store.Save(ctx, n); !ok {
		t.Fatal("first save must insert")
	}
	if ok, _ := store.Save(ctx, n); ok {
		t.Fatal("second save must be ignored")
	}
	if err := store.MarkRead(ctx, "bob", "n1"); !errors.Is(err, notification.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if changed, _ := store.MarkAllRead(ctx, "alice"); changed != 1 {
		t.Fatalf("changed = %d", changed)
	}
	if changed, _ := store.MarkAllRead(ctx, "alice"); changed != 0 {
		t.Fatalf("changed = %d", changed)
	}
}

func TestInboxSeenAndRelease(t *testing.T) {
	ctx := context.Background()
	inbox := NewInbox()
	if seen, _ := inbox.Seen(ctx, "e1"); seen {
		t.Fatal("first sighting")
	}
	if seen, _ := inbox.Seen(ctx, "e1"); !seen {
		t.Fatal("second sighting")
	}
	_ = inbox.Release(ctx, "e1")
	if seen, _ := inbox.Seen(ctx, "e1"); seen {
		t.Fatal("released id must be claimable again")
	}
}

func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(epoch)
	box := NewOutbox(clk)
	for _, id := range []string{"e1", "e2"} {
		if err := box.Add(ctx, appoutbox.EventRecord{ID: id, Name: "message.sent", Payload: []byte(`{}`)}); err != nil {
			t.Fatal(err)
		}
	}
	_ = box.Add(ctx, appoutbox.EventRecord{ID: "e1", Name: "message.sent"})
	if box.Pending() != 2 {
		t.Fatalf("pending = %d", box.Pending())
	}

	doc, err := box.Claim(ctx, "w1")
	if err != nil || doc == nil || doc.ID != "e1" || doc.ClaimedBy != "w1" {
		t.Fatalf("claim = %+v err=%v", doc, err)
	}
	if err := box.MarkFailed(ctx, "e1", epoch.Add(time.Minute), "broker down"); err != nil {
		t.Fatal(err)
	}
	doc, _ = box.Claim(ctx, "w1")
	if doc == nil || doc.ID != "e2" {
		t.Fatalf("claim = %+v", doc)
	}
	_ = box.MarkSent(ctx, "e2")
	if doc, _ := box.Claim(ctx, "w1"); doc != nil {
		t.Fatalf("failed record claimed before its retry time: %+v", doc)
	}

	clk.Advance(time.Minute)
	doc, _ = box.Claim(ctx, "w1")
	if doc == nil || doc.ID != "e1" || doc.Attempts != 1 || doc.LastError != "broker down" {
		t.Fatalf("retry claim = %+v", doc)
	}
	_ = box.MarkSent(ctx, "e1")
	_ = box.Flush(ctx)
	if box.Pending() != 0 || len(box.records) != 0 {
		t.Fatalf("pending = %d records = %d", box.Pending(), len(box.records))
	}
}
