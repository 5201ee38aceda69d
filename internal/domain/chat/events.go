package chat

import "time"

// MessageSent is published after a message is persisted.
type MessageSent struct {
	MessageID      string      `json:"messageId"`
	ConversationID string      `json:"conversationId"`
	BookingID      string      `json:"bookingId,omitempty"`
	SenderID       string      `json:"senderId"`
	RecipientID    string      `json:"recipientId"`
	MessageType    MessageType `json:"messageType"`
	At             time.Time   `json:"at"`
}

func (e MessageSent) EventName() string     { return "message.sent" }
func (e MessageSent) AggregateID() string   { return e.ConversationID }
func (e MessageSent) OccurredAt() time.Time { return e.At }

// ConversationStarted is published when a booking conversation is created.
type ConversationStarted struct {
	ConversationID string    `json:"conversationId"`
	BookingID      string    `json:"bookingId"`
	OwnerID        string    `json:"ownerId"`
	RenterID       string    `json:"renterId"`
	At             time.Time `json:"at"`
}

func (e ConversationStarted) EventName() string     { return "conversation.started" }
func (e ConversationStarted) AggregateID() string   { return e.ConversationID }
func (e ConversationStarted) OccurredAt() time.Time { return e.At }
