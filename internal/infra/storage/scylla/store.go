package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	appmessaging "rentme-realtime/internal/app/messaging"
	"rentme-realtime/internal/domain/chat"
)

const conversationColumns = `id, booking_id, owner_id, renter_id, created_at, last_message_at, last_message_id, last_message_sender_id, last_message_content, last_message_type`

const messageColumns = `conversation_id, message_id, sender_id, content, message_type, client_id, created_at, is_read`

// Store wraps Scylla queries for conversations and messages.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewStore builds a Store.
func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

var errNoSession = errors.New("scylla session not initialized")

// GetConversation returns a conversation by its identifier.
func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	uuid, err := gocql.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	var row conversationRow
	err = s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, uuid).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return row.toDomain(), nil
}

// FindConversationByBooking resolves the booking's thread via the lookup table.
func (s *Store) FindConversationByBooking(ctx context.Context, bookingID string) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	var id gocql.UUID
	err := s.session.
		Query(`SELECT conversation_id FROM conversations_by_booking WHERE booking_id = ?`, bookingID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return s.GetConversation(ctx, id.String())
}

// CreateConversation claims the booking with a lightweight transaction so
// concurrent callers converge on one conversation.
func (s *Store) CreateConversation(ctx context.Context, bookingID, ownerID, renterID string, now time.Time) (chat.Conversation, error) {
	if s.session == nil {
		return chat.Conversation{}, errNoSession
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	id := gocql.TimeUUID()

	existing := map[string]any{}
	applied, err := s.session.
		Query(`INSERT INTO conversations_by_booking (booking_id, conversation_id) VALUES (?, ?) IF NOT EXISTS`, bookingID, id).
		WithContext(ctx).
		SerialConsistency(gocql.Serial).
		MapScanCAS(existing)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("claim booking: %w", err)
	}
	if !applied {
		if prior, ok := existing["conversation_id"].(gocql.UUID); ok {
			return s.GetConversation(ctx, prior.String())
		}
		return chat.Conversation{}, fmt.Errorf("claim booking %s: conflicting row without id", bookingID)
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO conversations (id, booking_id, owner_id, renter_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, bookingID, ownerID, renterID, now)
	batch.Query(`INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`, ownerID, id)
	batch.Query(`INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`, renterID, id)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{
		ID:        id.String(),
		BookingID: bookingID,
		OwnerID:   ownerID,
		RenterID:  renterID,
		CreatedAt: now,
	}, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.session.
		Query(`SELECT conversation_id FROM conversations_by_user WHERE user_id = ?`, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		id  gocql.UUID
		ids []gocql.UUID
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []chat.Conversation{}, nil
	}

	rows := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id IN ?`, ids).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	conversations := make([]chat.Conversation, 0, len(ids))
	var row conversationRow
	for rows.Scan(row.dest()...) {
		conversations = append(conversations, row.toDomain())
		row = conversationRow{}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	sort.Slice(conversations, func(i, j int) bool {
		return chat.MoreRecent(conversations[i], conversations[j])
	})
	return conversations, nil
}

// AddMessage appends a message and updates the conversation's last message.
func (s *Store) AddMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	conversationID, err := gocql.ParseUUID(msg.ConversationID)
	if err != nil {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	// Scylla timestamps carry milliseconds.
	at = at.UTC().Truncate(time.Millisecond)
	messageID := gocql.UUIDFromTime(at)
	if err := s.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conversationID, messageID, msg.SenderID, msg.Content, string(msg.Type), msg.ClientID, at, false).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return chat.Message{}, err
	}
	// best-effort update of the last message snapshot
	if err := s.session.
		Query(`UPDATE conversations SET last_message_at = ?, last_message_id = ?, last_message_sender_id = ?, last_message_content = ?, last_message_type = ? WHERE id = ?`,
			at, messageID, msg.SenderID, trimSnippet(msg.Content, 500), string(msg.Type), conversationID).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update last message meta", "error", err, "conversation_id", msg.ConversationID)
	}
	msg.ID = messageID.String()
	msg.CreatedAt = at
	msg.IsRead = false
	msg.Status = ""
	return msg, nil
}

// FindMessageByClientID scans the conversation partition for a client id.
func (s *Store) FindMessageByClientID(ctx context.Context, conversationID, senderID, clientID string) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	convID, err := gocql.ParseUUID(conversationID)
	if err != nil {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND client_id = ? ALLOW FILTERING`, convID, clientID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Iter()
	var row messageRow
	for iter.Scan(row.dest()...) {
		if row.SenderID == senderID {
			found := row.toDomain()
			_ = iter.Close()
			return found, nil
		}
	}
	if err := iter.Close(); err != nil {
		return chat.Message{}, err
	}
	return chat.Message{}, chat.ErrMessageNotFound
}

func (s *Store) GetMessage(ctx context.Context, conversationID, messageID string) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	convID, msgID, err := parseMessageKey(conversationID, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	var row messageRow
	err = s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND message_id = ?`, convID, msgID).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Scan(row.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, err
	}
	return row.toDomain(), nil
}

// ListMessages reads the newest page before the cursor and returns it
// oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	convID, err := gocql.ParseUUID(conversationID)
	if err != nil {
		return nil, chat.ErrConversationNotFound
	}

	var iter *gocql.Iter
	if before != "" {
		cursor, err := gocql.ParseUUID(before)
		if err != nil {
			return nil, chat.ErrMessageNotFound
		}
		iter = s.session.
			Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND message_id < ? ORDER BY message_id DESC LIMIT ?`,
				convID, cursor, limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	} else {
		iter = s.session.
			Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY message_id DESC LIMIT ?`,
				convID, limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	}

	messages := make([]chat.Message, 0, limit)
	var row messageRow
	for iter.Scan(row.dest()...) {
		messages = append(messages, row.toDomain())
		row = messageRow{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return chat.Less(messages[i], messages[j]) })
	return messages, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, conversationID, messageID string) error {
	if s.session == nil {
		return errNoSession
	}
	convID, msgID, err := parseMessageKey(conversationID, messageID)
	if err != nil {
		return err
	}
	return s.session.
		Query(`UPDATE messages SET is_read = true WHERE conversation_id = ? AND message_id = ? IF EXISTS`, convID, msgID).
		WithContext(ctx).
		SerialConsistency(gocql.Serial).
		Exec()
}

// CountUnread filters inside the conversation partition.
func (s *Store) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	if s.session == nil {
		return 0, errNoSession
	}
	convID, err := gocql.ParseUUID(conversationID)
	if err != nil {
		return 0, chat.ErrConversationNotFound
	}
	iter := s.session.
		Query(`SELECT sender_id FROM messages WHERE conversation_id = ? AND is_read = false ALLOW FILTERING`, convID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		sender string
		count  int
	)
	for iter.Scan(&sender) {
		if sender != userID {
			count++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

func parseMessageKey(conversationID, messageID string) (gocql.UUID, gocql.UUID, error) {
	convID, err := gocql.ParseUUID(conversationID)
	if err != nil {
		return gocql.UUID{}, gocql.UUID{}, chat.ErrConversationNotFound
	}
	msgID, err := gocql.ParseUUID(messageID)
	if err != nil {
		return gocql.UUID{}, gocql.UUID{}, chat.ErrMessageNotFound
	}
	return convID, msgID, nil
}

func trimSnippet(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

type conversationRow struct {
	ID            gocql.UUID
	BookingID     string
	OwnerID       string
	RenterID      string
	CreatedAt     time.Time
	LastMessageAt time.Time
	LastMessageID gocql.UUID
	LastSenderID  string
	LastContent   string
	LastType      string
}

func (r *conversationRow) dest() []any {
	return []any{&r.ID, &r.BookingID, &r.OwnerID, &r.RenterID, &r.CreatedAt, &r.LastMessageAt,
		&r.LastMessageID, &r.LastSenderID, &r.LastContent, &r.LastType}
}

func (r conversationRow) toDomain() chat.Conversation {
	conv := chat.Conversation{
		ID:            r.ID.String(),
		BookingID:     r.BookingID,
		OwnerID:       r.OwnerID,
		RenterID:      r.RenterID,
		CreatedAt:     r.CreatedAt.UTC(),
		LastMessageAt: r.LastMessageAt.UTC(),
	}
	if r.LastMessageID != (gocql.UUID{}) {
		conv.LastMessage = &chat.Message{
			ID:             r.LastMessageID.String(),
			ConversationID: conv.ID,
			SenderID:       r.LastSenderID,
			Content:        r.LastContent,
			Type:           chat.MessageType(r.LastType),
			CreatedAt:      conv.LastMessageAt,
		}
	}
	return conv
}

type messageRow struct {
	ConversationID gocql.UUID
	ID             gocql.UUID
	SenderID       string
	Content        string
	Type           string
	ClientID       string
	CreatedAt      time.Time
	IsRead         bool
}

func (r *messageRow) dest() []any {
	return []any{&r.ConversationID, &r.ID, &r.SenderID, &r.Content, &r.Type, &r.ClientID, &r.CreatedAt, &r.IsRead}
}

func (r messageRow) toDomain() chat.Message {
	return chat.Message{
		ID:             r.ID.String(),
		ConversationID: r.ConversationID.String(),
		SenderID:       r.SenderID,
		Content:        r.Content,
		Type:           chat.MessageType(r.Type),
		ClientID:       r.ClientID,
		CreatedAt:      r.CreatedAt.UTC(),
		IsRead:         r.IsRead,
	}
}

var _ appmessaging.Store = (*Store)(nil)
