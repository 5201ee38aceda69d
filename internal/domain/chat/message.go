package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrContentRequired      = errors.New("chat: content is required")
	ErrConversationRequired = errors.New("chat: conversation id is required")
	ErrSenderRequired       = errors.New("chat: sender id is required")
	ErrUnknownMessageType   = errors.New("chat: unknown message type")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrNotRecipient         = errors.New("chat: only the recipient can mark a message read")
)

// MessageType tags the payload carried by Content. Only text carries a
// guaranteed shape; the others are rendered by the client as it sees fit.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageBookingCard MessageType = "booking-card"
	MessageSystem      MessageType = "system"
)

// ParseMessageType normalizes raw input, defaulting to text when empty.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageBookingCard:
		return MessageBookingCard, nil
	case MessageSystem:
		return MessageSystem, nil
	default:
		return "", ErrUnknownMessageType
	}
}

// MessageStatus is client-side delivery state. Server-issued messages are
// always confirmed.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
	StatusFailed    MessageStatus = "failed"
)

// LocalIDPrefix marks ids of optimistic placeholders. Server ids are
// UUIDs and never carry it.
const LocalIDPrefix = "local:"

// Message is a single chat entry.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	CreatedAt      time.Time     `json:"createdAt"`
	IsRead         bool          `json:"isRead"`
	ClientID       string        `json:"clientId,omitempty"`
	Status         MessageStatus `json:"-"`
}

// IsLocal reports whether the message is an unconfirmed placeholder.
func (m Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, LocalIDPrefix)
}

// Validate checks the fields every persisted message must carry.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return ErrConversationRequired
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return ErrSenderRequired
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrContentRequired
	}
	return nil
}

// SameContent reports whether two messages carry the same payload. Read
// state and delivery status are not part of the payload.
func (m Message) SameContent(other Message) bool {
	return m.ConversationID == other.ConversationID &&
		m.SenderID == other.SenderID &&
		m.Content == other.Content &&
		m.Type == other.Type &&
		m.CreatedAt.Equal(other.CreatedAt)
}

// Less orders messages by (createdAt, id) ascending.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
