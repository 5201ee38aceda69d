package notifications

import (
	"context"

	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

// Store persists notifications per user.
type Store interface {
	// Save inserts n and reports false when its id is already stored.
	Save(ctx context.Context, n notification.Notification) (bool, error)
	// List returns up to limit notifications for the user, newest first.
	List(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead returns notification.ErrNotFound when the user has no such
	// notification.
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// Deliverer pushes a stored notification to the user's live sessions.
type Deliverer interface {
	DeliverNotification(ctx context.Context, n notification.Notification) error
}

// Inbox remembers processed event ids for one consumer. Seen records the
// id and reports whether it was already recorded.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// ConversationOpener creates the booking thread once contact is allowed.
type ConversationOpener interface {
	GetOrCreateConversationForBooking(ctx context.Context, bookingID, ownerID, renterID string) (chat.Conversation, error)
}
