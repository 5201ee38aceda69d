package memory

import (
	"context"
	"sort"
	"sync"

	appnotifications "rentme-realtime/internal/app/notifications"
	"rentme-realtime/internal/domain/notification"
)

// NotificationStore keeps notifications per user in memory.
type NotificationStore struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*notification.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{byUser: make(map[string]map[string]*notification.Notification)}
}

func (s *NotificationStore) Save(ctx context.Context, n notification.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.byUser[n.UserID]
	if !ok {
		items = make(map[string]*notification.Notification)
		s.byUser[n.UserID] = items
	}
	if _, exists := items[n.ID]; exists {
		return false, nil
	}
	stored := n
	items[n.ID] = &stored
	return true, nil
}

func (s *NotificationStore) List(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notification.Notification, 0, len(s.byUser[userID]))
	for _, n := range s.byUser[userID] {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return notification.Newer(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.byUser[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byUser[userID][id]
	if !ok {
		return notification.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, n := range s.byUser[userID] {
		if !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

var _ appnotifications.Store = (*NotificationStore)(nil)

// Inbox records processed event ids in memory.
type Inbox struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInbox() *Inbox {
	return &Inbox{seen: make(map[string]struct{})}
}

func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[eventID]; ok {
		return true, nil
	}
	i.seen[eventID] = struct{}{}
	return false, nil
}

func (i *Inbox) Release(ctx context.Context, eventID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, eventID)
	return nil
}

var _ appnotifications.Inbox = (*Inbox)(nil)
