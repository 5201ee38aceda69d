// Package messagingv1 is the rentme.messaging.v1 contract shared by the
// messaging service and its clients. Messages travel as JSON.
package messagingv1

import "time"

type Conversation struct {
	Id            string    `json:"id"`
	BookingId     string    `json:"bookingId"`
	OwnerId       string    `json:"ownerId"`
	RenterId      string    `json:"renterId"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	UnreadCount   int32     `json:"unreadCount"`
}

func (c *Conversation) GetId() string {
	if c == nil {
		return ""
	}
	return c.Id
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversationId"`
	SenderId       string    `json:"senderId"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	ClientId       string    `json:"clientId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
}

func (m *Message) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}

type GetOrCreateConversationForBookingRequest struct {
	BookingId string `json:"bookingId"`
	OwnerId   string `json:"ownerId"`
	RenterId  string `json:"renterId"`
}

type GetConversationRequest struct {
	ConversationId string `json:"conversationId"`
	// ViewerId, when set, fills UnreadCount for that participant.
	ViewerId string `json:"viewerId,omitempty"`
}

type GetConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Created      bool          `json:"created,omitempty"`
}

func (r *GetConversationResponse) GetConversation() *Conversation {
	if r == nil {
		return nil
	}
	return r.Conversation
}

type ListConversationsRequest struct {
	UserId string `json:"userId"`
	Limit  int32  `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
	NextCursor    string          `json:"nextCursor,omitempty"`
}

func (r *ListConversationsResponse) GetConversations() []*Conversation {
	if r == nil {
		return nil
	}
	return r.Conversations
}

type ListMessagesRequest struct {
	ConversationId string `json:"conversationId"`
	Limit          int32  `json:"limit,omitempty"`
	// Before is a message id; only older messages are returned.
	Before string `json:"before,omitempty"`
}

// ListMessagesResponse lists messages oldest first.
type ListMessagesResponse struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

func (r *ListMessagesResponse) GetMessages() []*Message {
	if r == nil {
		return nil
	}
	return r.Messages
}

type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	SenderId       string `json:"senderId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType,omitempty"`
	ClientId       string `json:"clientId,omitempty"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
	// Duplicate is true when ClientId matched an already stored message.
	Duplicate bool `json:"duplicate,omitempty"`
}

func (r *SendMessageResponse) GetMessage() *Message {
	if r == nil {
		return nil
	}
	return r.Message
}

type MarkMessageReadRequest struct {
	ConversationId string `json:"conversationId"`
	MessageId      string `json:"messageId"`
	ReaderId       string `json:"readerId"`
}

type MarkMessageReadResponse struct {
	Message *Message `json:"message"`
	Changed bool     `json:"changed"`
}

func (r *MarkMessageReadResponse) GetMessage() *Message {
	if r == nil {
		return nil
	}
	return r.Message
}
