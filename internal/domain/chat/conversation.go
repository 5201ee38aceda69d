package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrNotParticipant       = errors.New("chat: not a conversation participant")
	ErrParticipantsRequired = errors.New("chat: owner and renter are required")
	ErrSelfConversation     = errors.New("chat: owner and renter must differ")
)

// Conversation is the thread between the owner and the renter of a booking.
type Conversation struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"bookingId"`
	OwnerID       string    `json:"ownerId"`
	RenterID      string    `json:"renterId"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID is the owner or the renter.
func (c Conversation) HasParticipant(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && (c.OwnerID == userID || c.RenterID == userID)
}

// Peer returns the other participant, or "" when userID is not a member.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.OwnerID:
		return c.RenterID
	case c.RenterID:
		return c.OwnerID
	default:
		return ""
	}
}

// Participants returns owner and renter in that order.
func (c Conversation) Participants() []string {
	return []string{c.OwnerID, c.RenterID}
}

// Activity is the directory sort key, falling back to creation time for
// threads without messages.
func (c Conversation) Activity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// ValidateParticipants checks the fixed owner/renter pair.
func ValidateParticipants(ownerID, renterID string) error {
	ownerID = strings.TrimSpace(ownerID)
	renterID = strings.TrimSpace(renterID)
	if ownerID == "" || renterID == "" {
		return ErrParticipantsRequired
	}
	if ownerID == renterID {
		return ErrSelfConversation
	}
	return nil
}

// MoreRecent orders conversations by activity descending, ties by id.
func MoreRecent(a, b Conversation) bool {
	if !a.Activity().Equal(b.Activity()) {
		return a.Activity().After(b.Activity())
	}
	return a.ID < b.ID
}
