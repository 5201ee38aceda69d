package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentme-realtime/internal/domain/chat"
	pb "rentme-realtime/internal/proto/messagingv1"
)

func toProtoConversation(conv chat.Conversation) *pb.Conversation {
	out := &pb.Conversation{
		Id:            conv.ID,
		BookingId:     conv.BookingID,
		OwnerId:       conv.OwnerID,
		RenterId:      conv.RenterID,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
		UnreadCount:   int32(conv.UnreadCount),
	}
	if conv.LastMessage != nil {
		out.LastMessage = toProtoMessage(*conv.LastMessage)
	}
	return out
}

func toProtoMessage(msg chat.Message) *pb.Message {
	return &pb.Message{
		Id:             msg.ID,
		ConversationId: msg.ConversationID,
		SenderId:       msg.SenderID,
		Content:        msg.Content,
		MessageType:    string(msg.Type),
		ClientId:       msg.ClientID,
		CreatedAt:      msg.CreatedAt,
		IsRead:         msg.IsRead,
	}
}

// Cursors are "<activity unix nanos>|<conversation id>".
func parseCursor(raw string) (time.Time, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, "", nil
	}
	nanosRaw, id, ok := strings.Cut(trimmed, "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor")
	}
	nanos, err := strconv.ParseInt(nanosRaw, 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

func buildCursor(conv chat.Conversation) string {
	return fmt.Sprintf("%d|%s", conv.Activity().UTC().UnixNano(), conv.ID)
}

// beforeCursor reports whether conv sorts after the cursor position in
// most-recent-first order.
func beforeCursor(conv chat.Conversation, cursorTime time.Time, cursorID string) bool {
	activity := conv.Activity()
	if activity.After(cursorTime) {
		return false
	}
	if activity.Equal(cursorTime) && conv.ID >= cursorID {
		return false
	}
	return true
}
