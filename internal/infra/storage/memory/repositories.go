package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appmessaging "rentme-realtime/internal/app/messaging"
	"rentme-realtime/internal/domain/chat"
)

// MessagingStore keeps conversations and messages in memory. It backs
// the messaging service in dev and tests.
type MessagingStore struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	byBooking     map[string]string
	// messages per conversation, kept ordered by chat.Less.
	messages map[string][]chat.Message
	newID    func() string
}

// NewMessagingStore builds an empty store.
func NewMessagingStore() *MessagingStore {
	return &MessagingStore{
		conversations: make(map[string]*chat.Conversation),
		byBooking:     make(map[string]string),
		messages:      make(map[string][]chat.Message),
		newID:         uuid.NewString,
	}
}

func (s *MessagingStore) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MessagingStore) FindConversationByBooking(ctx context.Context, bookingID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBooking[bookingID]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

// CreateConversation returns the existing conversation when the booking
// already has one.
func (s *MessagingStore) CreateConversation(ctx context.Context, bookingID, ownerID, renterID string, now time.Time) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byBooking[bookingID]; ok {
		return cloneConversation(s.conversations[id]), nil
	}
	conv := &chat.Conversation{
		ID:        s.newID(),
		BookingID: bookingID,
		OwnerID:   ownerID,
		RenterID:  renterID,
		CreatedAt: now.UTC(),
	}
	s.conversations[conv.ID] = conv
	s.byBooking[bookingID] = conv.ID
	return cloneConversation(conv), nil
}

func (s *MessagingStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return chat.MoreRecent(out[i], out[j]) })
	return out, nil
}

func (s *MessagingStore) AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	msg.Status = ""
	list := s.messages[msg.ConversationID]
	idx := sort.Search(len(list), func(i int) bool { return chat.Less(msg, list[i]) })
	list = append(list, chat.Message{})
	copy(list[idx+1:], list[idx:])
	list[idx] = msg
	s.messages[msg.ConversationID] = list

	if !msg.CreatedAt.Before(conv.LastMessageAt) {
		last := msg
		conv.LastMessage = &last
		conv.LastMessageAt = msg.CreatedAt
	}
	return msg, nil
}

func (s *MessagingStore) FindMessageByClientID(ctx context.Context, conversationID, senderID, clientID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages[conversationID] {
		if msg.ClientID == clientID && msg.SenderID == senderID {
			return msg, nil
		}
	}
	return chat.Message{}, chat.ErrMessageNotFound
}

func (s *MessagingStore) GetMessage(ctx context.Context, conversationID, messageID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := indexOf(s.messages[conversationID], messageID)
	if idx < 0 {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	return s.messages[conversationID][idx], nil
}

func (s *MessagingStore) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[conversationID]
	end := len(list)
	if before != "" {
		end = indexOf(list, before)
		if end < 0 {
			return nil, chat.ErrMessageNotFound
		}
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return append([]chat.Message(nil), list[start:end]...), nil
}

func (s *MessagingStore) MarkMessageRead(ctx context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	idx := indexOf(list, messageID)
	if idx < 0 {
		return chat.ErrMessageNotFound
	}
	list[idx].IsRead = true
	if conv := s.conversations[conversationID]; conv != nil && conv.LastMessage != nil && conv.LastMessage.ID == messageID {
		conv.LastMessage.IsRead = true
	}
	return nil
}

func (s *MessagingStore) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msg := range s.messages[conversationID] {
		if !msg.IsRead && msg.SenderID != userID {
			n++
		}
	}
	return n, nil
}

func indexOf(list []chat.Message, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneConversation(conv *chat.Conversation) chat.Conversation {
	out := *conv
	if conv.LastMessage != nil {
		last := *conv.LastMessage
		out.LastMessage = &last
	}
	return out
}

var _ appmessaging.Store = (*MessagingStore)(nil)
