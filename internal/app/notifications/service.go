// Package notifications stores user notifications, pushes them to live
// sessions and turns booking and payment events into notifications.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentme-realtime/internal/domain/notification"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	Store    Store
	Delivery Deliverer
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
	// OnStored, when set, observes every newly stored notification.
	OnStored func(notification.Notification)
}

// Notify stores n and delivers it live. Id and creation time are filled
// when empty. A notification whose id is already stored is neither
// stored nor delivered again.
func (s *Service) Notify(ctx context.Context, n notification.Notification) (notification.Notification, bool, error) {
	if s.Store == nil {
		return notification.Notification{}, false, fmt.Errorf("notifications: store not configured")
	}
	if strings.TrimSpace(n.ID) == "" {
		n.ID = s.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.IsRead = false
	if err := n.Validate(); err != nil {
		return notification.Notification{}, false, err
	}
	inserted, err := s.Store.Save(ctx, n)
	if err != nil {
		return notification.Notification{}, false, fmt.Errorf("save notification: %w", err)
	}
	if !inserted {
		return n, false, nil
	}
	if s.OnStored != nil {
		s.OnStored(n)
	}
	if s.Delivery != nil {
		if err := s.Delivery.DeliverNotification(ctx, n); err != nil && s.Logger != nil {
			s.Logger.Warn("notification delivery failed", "notification_id", n.ID, "user_id", n.UserID, "error", err)
		}
	}
	return n, true, nil
}

// List returns the user's notifications newest first and the unread total.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]notification.Notification, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, notification.ErrUserRequired
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	items, err := s.Store.List(ctx, userID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.Store.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return items, unread, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return notification.ErrUserRequired
	}
	return s.Store.MarkRead(ctx, userID, strings.TrimSpace(id))
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, notification.ErrUserRequired
	}
	return s.Store.MarkAllRead(ctx, userID)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
