package client

import (
	"sort"
	"time"

	"rentme-realtime/internal/domain/chat"
)

// Stream is the ordered message log of one open conversation. It merges
// REST history, live inserts and optimistic placeholders. Messages stay
// sorted by (createdAt, id) with no duplicate id.
type Stream struct {
	conversationID string
	selfID         string
	messages       []chat.Message
	ids            map[string]struct{}

	// epoch tags history fetches; results from an older epoch are dropped.
	epoch  uint64
	loaded bool
}

func newStream(conversationID, selfID string) *Stream {
	return &Stream{
		conversationID: conversationID,
		selfID:         selfID,
		ids:            make(map[string]struct{}),
	}
}

func (s *Stream) ConversationID() string { return s.conversationID }

// Messages returns a copy of the log.
func (s *Stream) Messages() []chat.Message {
	return append([]chat.Message(nil), s.messages...)
}

func (s *Stream) Len() int { return len(s.messages) }

// Append merges m into the log. It reports whether the log changed. A
// known id with different content keeps the first copy and returns a
// MergeConflictError; a known id only ever upgrades isRead.
func (s *Stream) Append(m chat.Message) (bool, error) {
	if m.Status == "" {
		m.Status = chat.StatusConfirmed
	}
	if _, ok := s.ids[m.ID]; ok {
		i := s.indexOf(m.ID)
		existing := s.messages[i]
		if !existing.SameContent(m) {
			return false, &MergeConflictError{MessageID: m.ID, Kept: existing, Dropped: m}
		}
		if m.IsRead && !existing.IsRead {
			s.messages[i].IsRead = true
			return true, nil
		}
		return false, nil
	}
	s.insert(m)
	return true, nil
}

func (s *Stream) insert(m chat.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		return chat.Less(m, s.messages[i])
	})
	s.messages = append(s.messages, chat.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	s.ids[m.ID] = struct{}{}
}

func (s *Stream) remove(id string) (chat.Message, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return chat.Message{}, false
	}
	m := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	delete(s.ids, id)
	return m, true
}

func (s *Stream) indexOf(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the message with id.
func (s *Stream) Get(id string) (chat.Message, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return chat.Message{}, false
	}
	return s.messages[i], true
}

// AddPending appends an optimistic placeholder.
func (s *Stream) AddPending(m chat.Message) {
	m.Status = chat.StatusPending
	s.insert(m)
}

// Reconcile replaces the placeholder matching the confirmed message. With
// fallback false only a clientId match counts; with fallback true a
// placeholder with the same sender and content and the nearest timestamp
// is taken when the echo has no clientId. It returns the replaced temp id.
func (s *Stream) Reconcile(confirmed chat.Message, fallback bool) (string, bool) {
	best := -1
	var bestGap time.Duration
	for i, m := range s.messages {
		if !m.IsLocal() || m.SenderID != confirmed.SenderID {
			continue
		}
		if confirmed.ClientID != "" {
			if m.ClientID == confirmed.ClientID {
				best = i
				break
			}
			continue
		}
		if !fallback || m.Content != confirmed.Content {
			continue
		}
		gap := m.CreatedAt.Sub(confirmed.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	if best < 0 {
		return "", false
	}
	tempID := s.messages[best].ID
	s.remove(tempID)
	confirmed.Status = chat.StatusConfirmed
	if _, ok := s.ids[confirmed.ID]; !ok {
		s.insert(confirmed)
	}
	return tempID, true
}

// SetStatus updates a placeholder's delivery state.
func (s *Stream) SetStatus(tempID string, status chat.MessageStatus) bool {
	i := s.indexOf(tempID)
	if i < 0 || !s.messages[i].IsLocal() {
		return false
	}
	s.messages[i].Status = status
	return true
}

// Discard drops a placeholder.
func (s *Stream) Discard(tempID string) (chat.Message, bool) {
	m, ok := s.Get(tempID)
	if !ok || !m.IsLocal() {
		return chat.Message{}, false
	}
	return s.remove(tempID)
}

// Pending lists placeholders that still wait for an echo or a retry.
func (s *Stream) Pending() []chat.Message {
	var out []chat.Message
	for _, m := range s.messages {
		if m.IsLocal() {
			out = append(out, m)
		}
	}
	return out
}

// MarkRead flips isRead on a confirmed message.
func (s *Stream) MarkRead(id string) bool {
	i := s.indexOf(id)
	if i < 0 || s.messages[i].IsRead || s.messages[i].IsLocal() {
		return false
	}
	s.messages[i].IsRead = true
	return true
}

// UnreadFromPeers counts confirmed unread messages not written by self.
func (s *Stream) UnreadFromPeers() int {
	n := 0
	for _, m := range s.messages {
		if !m.IsRead && !m.IsLocal() && m.SenderID != s.selfID {
			n++
		}
	}
	return n
}
