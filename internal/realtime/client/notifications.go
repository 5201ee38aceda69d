package client

import (
	"sort"

	"rentme-realtime/internal/domain/notification"
)

// Alerter raises a system alert for a live notification. Failures never
// affect notification state.
type Alerter interface {
	Alert(n notification.Notification) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(notification.Notification) error

func (f AlerterFunc) Alert(n notification.Notification) error { return f(n) }

// Notifications keeps the de-duplicated notification list, newest first.
type Notifications struct {
	items []notification.Notification
	ids   map[string]int
}

func newNotifications() *Notifications {
	return &Notifications{ids: make(map[string]int)}
}

// Add merges n. It reports whether the list changed. A known id only ever
// upgrades isRead.
func (ns *Notifications) Add(n notification.Notification) bool {
	if i, ok := ns.ids[n.ID]; ok {
		if n.IsRead && !ns.items[i].IsRead {
			ns.items[i].IsRead = true
			return true
		}
		return false
	}
	ns.items = append(ns.items, n)
	ns.reindex()
	return true
}

// Seed merges a fetched page.
func (ns *Notifications) Seed(list []notification.Notification) bool {
	changed := false
	for _, n := range list {
		if ns.Add(n) {
			changed = true
		}
	}
	return changed
}

func (ns *Notifications) reindex() {
	sort.SliceStable(ns.items, func(i, j int) bool {
		return notification.Newer(ns.items[i], ns.items[j])
	})
	for i, n := range ns.items {
		ns.ids[n.ID] = i
	}
}

// MarkRead flips one notification.
func (ns *Notifications) MarkRead(id string) bool {
	i, ok := ns.ids[id]
	if !ok || ns.items[i].IsRead {
		return false
	}
	ns.items[i].IsRead = true
	return true
}

// MarkAllRead flips every unread notification and returns how many.
func (ns *Notifications) MarkAllRead() int {
	n := 0
	for i := range ns.items {
		if !ns.items[i].IsRead {
			ns.items[i].IsRead = true
			n++
		}
	}
	return n
}

func (ns *Notifications) List() []notification.Notification {
	return append([]notification.Notification(nil), ns.items...)
}

func (ns *Notifications) Unread() int {
	n := 0
	for _, it := range ns.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}
