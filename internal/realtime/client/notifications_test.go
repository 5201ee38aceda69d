package client

import (
	"testing"
	"time"

	"rentme-realtime/internal/domain/notification"
)

func note(id string, at time.Duration) notification.Notification {
	return notification.Notification{ID: id, Type: notification.TypeBooking, Title: "t", CreatedAt: epoch.Add(at)}
}

func TestNotificationsDedupAndOrder(t *testing.T) {
	ns := newNotifications()
	ns.Add(note("b", time.Minute))
	ns.Add(note("a", time.Minute))
	ns.Add(note("old", 0))
	if ns.Add(note("a", time.Minute)) {
		t.Fatal("duplicate must be ignored")
	}
	list := ns.List()
	want := []string{"a", "b", "old"}
	for i, n := range list {
		if n.ID != want[i] {
			t.Fatalf("order = %v", list)
		}
	}
	if ns.Unread() != 3 {
		t.Fatalf("unread = %d", ns.Unread())
	}

	read := note("b", time.Minute)
	read.IsRead = true
	if !ns.Seed([]notification.Notification{read}) || ns.Unread() != 2 {
		t.Fatalf("seeded read state not applied, unread = %d", ns.Unread())
	}
	if !ns.MarkRead("a") || ns.MarkRead("a") || ns.MarkRead("missing") {
		t.Fatal("MarkRead should flip once")
	}
	if n := ns.MarkAllRead(); n != 1 || ns.Unread() != 0 {
		t.Fatalf("MarkAllRead = %d, unread = %d", n, ns.Unread())
	}
}
