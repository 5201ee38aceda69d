package dto

import (
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

// ConversationList is returned by GET /api/v1/conversations.
type ConversationList struct {
	Items      []chat.Conversation `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

// MessageList is returned by GET /api/v1/conversations/:id/messages,
// oldest first.
type MessageList struct {
	Items      []chat.Message `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// NotificationList is returned by GET /api/v1/notifications.
type NotificationList struct {
	Items  []notification.Notification `json:"items"`
	Unread int                         `json:"unread"`
}

// Me identifies the caller of GET /api/v1/me.
type Me struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// Attachment is returned after an upload.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// MarkedRead is returned by POST /api/v1/notifications/read-all.
type MarkedRead struct {
	Updated int `json:"updated"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}
