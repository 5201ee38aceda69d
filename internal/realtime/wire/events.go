// Package wire defines the JSON events exchanged over the realtime socket.
// Every frame is an envelope {"event": name, "data": payload} and every
// payload decodes into one concrete Event type.
package wire

import (
	"strings"

	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

// Name identifies an event on the wire.
type Name string

const (
	EvtJoinConversation  Name = "join-conversation"
	EvtLeaveConversation Name = "leave-conversation"
	EvtSendMessage       Name = "send-message"
	EvtNewMessage        Name = "new-message"
	EvtMarkMessageRead   Name = "mark-message-read"
	EvtMessageRead       Name = "message-read"
	EvtTyping            Name = "typing"
	EvtUserTyping        Name = "user-typing"
	EvtUserStatus        Name = "user-status"
	EvtJoinNotifications Name = "join-notifications"
	EvtNotification      Name = "notification"
	EvtError             Name = "error"
)

// Event is implemented by every payload type.
type Event interface {
	EventName() Name
	Validate() error
}

// FromClient reports whether name is an event clients may send.
func FromClient(name Name) bool {
	switch name {
	case EvtJoinConversation, EvtLeaveConversation, EvtSendMessage,
		EvtMarkMessageRead, EvtTyping, EvtJoinNotifications:
		return true
	}
	return false
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

func (JoinConversation) EventName() Name { return EvtJoinConversation }

func (e JoinConversation) Validate() error {
	return require("conversationId", e.ConversationID)
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

func (LeaveConversation) EventName() Name { return EvtLeaveConversation }

func (e LeaveConversation) Validate() error {
	return require("conversationId", e.ConversationID)
}

// SendMessage asks the server to persist and broadcast a message. ClientID
// is echoed back on the resulting NewMessage.
type SendMessage struct {
	ConversationID string           `json:"conversationId"`
	Content        string           `json:"content"`
	MessageType    chat.MessageType `json:"messageType"`
	ClientID       string           `json:"clientId,omitempty"`
}

func (SendMessage) EventName() Name { return EvtSendMessage }

func (e SendMessage) Validate() error {
	if err := require("conversationId", e.ConversationID); err != nil {
		return err
	}
	if err := require("content", e.Content); err != nil {
		return err
	}
	if _, err := chat.ParseMessageType(string(e.MessageType)); err != nil {
		return malformed("messageType %q", e.MessageType)
	}
	return nil
}

// NewMessage carries a persisted message to room members.
type NewMessage struct {
	chat.Message
}

func (NewMessage) EventName() Name { return EvtNewMessage }

func (e NewMessage) Validate() error {
	for _, f := range [][2]string{
		{"id", e.ID},
		{"conversationId", e.ConversationID},
		{"senderId", e.SenderID},
		{"content", e.Content},
	} {
		if err := require(f[0], f[1]); err != nil {
			return err
		}
	}
	if e.CreatedAt.IsZero() {
		return malformed("createdAt is required")
	}
	return nil
}

type MarkMessageRead struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

func (MarkMessageRead) EventName() Name { return EvtMarkMessageRead }

func (e MarkMessageRead) Validate() error {
	if err := require("messageId", e.MessageID); err != nil {
		return err
	}
	return require("conversationId", e.ConversationID)
}

// MessageRead announces that ReadBy has read MessageID. ConversationID is
// optional for compatibility with older servers.
type MessageRead struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	ReadBy         string `json:"readBy"`
}

func (MessageRead) EventName() Name { return EvtMessageRead }

func (e MessageRead) Validate() error {
	if err := require("messageId", e.MessageID); err != nil {
		return err
	}
	return require("readBy", e.ReadBy)
}

type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func (Typing) EventName() Name { return EvtTyping }

func (e Typing) Validate() error {
	return require("conversationId", e.ConversationID)
}

type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (UserTyping) EventName() Name { return EvtUserTyping }

func (e UserTyping) Validate() error {
	if err := require("conversationId", e.ConversationID); err != nil {
		return err
	}
	return require("userId", e.UserID)
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (UserStatus) EventName() Name { return EvtUserStatus }

func (e UserStatus) Validate() error {
	if err := require("userId", e.UserID); err != nil {
		return err
	}
	return require("status", e.Status)
}

type JoinNotifications struct{}

func (JoinNotifications) EventName() Name { return EvtJoinNotifications }

func (JoinNotifications) Validate() error { return nil }

type Notification struct {
	notification.Notification
}

func (Notification) EventName() Name { return EvtNotification }

func (e Notification) Validate() error {
	if err := require("id", e.ID); err != nil {
		return err
	}
	if _, err := notification.ParseType(string(e.Type)); err != nil {
		return malformed("type %q", e.Type)
	}
	return nil
}

// Error codes carried by ServerError.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeBadRequest   = "bad_request"
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

// ServerError reports a rejected client event. ClientID is set when the
// rejected event was a send-message.
type ServerError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}

func (ServerError) EventName() Name { return EvtError }

func (e ServerError) Validate() error {
	return require("code", e.Code)
}

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return malformed("%s is required", field)
	}
	return nil
}
