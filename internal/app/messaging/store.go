package messaging

import (
	"context"
	"time"

	"rentme-realtime/internal/domain/chat"
)

// Store persists conversations and messages. Lookups return
// chat.ErrConversationNotFound or chat.ErrMessageNotFound when nothing
// matches.
type Store interface {
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	FindConversationByBooking(ctx context.Context, bookingID string) (chat.Conversation, error)
	CreateConversation(ctx context.Context, bookingID, ownerID, renterID string, now time.Time) (chat.Conversation, error)
	// ListConversations returns the user's conversations with LastMessage
	// filled, most recent activity first. UnreadCount is left zero.
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)

	// AddMessage assigns an id, stores msg and advances the conversation's
	// last message.
	AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	FindMessageByClientID(ctx context.Context, conversationID, senderID, clientID string) (chat.Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (chat.Message, error)
	// ListMessages returns up to limit messages older than before (all when
	// before is empty), oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error)
	MarkMessageRead(ctx context.Context, conversationID, messageID string) error
	// CountUnread counts unread messages in the conversation not sent by userID.
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
}
