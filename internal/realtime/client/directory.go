package client

import (
	"log/slog"
	"sort"

	"rentme-realtime/internal/domain/chat"
)

// Directory caches the user's conversations. Unread counts start from the
// server snapshot and move with live messages and local reads.
type Directory struct {
	selfID string
	log    *slog.Logger

	convs map[string]*entry
	// buffered holds messages for conversations missing from the cache
	// until the next reload.
	buffered   []chat.Message
	refetching bool
	loaded     bool
}

type entry struct {
	conv    chat.Conversation
	counted map[string]struct{}
	// watermark is the newest message the server snapshot accounted for.
	watermark *chat.Message
}

func newDirectory(selfID string, log *slog.Logger) *Directory {
	return &Directory{selfID: selfID, log: log, convs: make(map[string]*entry)}
}

// Loaded reports whether a snapshot has been applied.
func (d *Directory) Loaded() bool { return d.loaded }

// Refetching reports whether a reload is in flight.
func (d *Directory) Refetching() bool { return d.refetching }

// BeginRefetch marks a reload as started. It returns false if one is
// already running.
func (d *Directory) BeginRefetch() bool {
	if d.refetching {
		return false
	}
	d.refetching = true
	return true
}

// AbortRefetch clears the in-flight flag after a failed reload. Buffered
// messages wait for the next one.
func (d *Directory) AbortRefetch() {
	d.refetching = false
}

// Seed replaces the cache with a server snapshot, then replays buffered
// messages. Messages still unknown are dropped and returned.
func (d *Directory) Seed(convs []chat.Conversation) (dropped []chat.Message) {
	next := make(map[string]*entry, len(convs))
	for _, c := range convs {
		e := &entry{conv: c, counted: make(map[string]struct{})}
		if c.UnreadCount < 0 {
			e.conv.UnreadCount = 0
		}
		if c.LastMessage != nil {
			last := *c.LastMessage
			e.watermark = &last
			e.counted[last.ID] = struct{}{}
		}
		if old, ok := d.convs[c.ID]; ok {
			for id := range old.counted {
				e.counted[id] = struct{}{}
			}
		}
		next[c.ID] = e
	}
	d.convs = next
	d.loaded = true
	d.refetching = false

	buffered := d.buffered
	d.buffered = nil
	for _, m := range buffered {
		if _, ok := d.convs[m.ConversationID]; !ok {
			d.log.Warn("dropping message for unknown conversation",
				"conversation_id", m.ConversationID, "message_id", m.ID)
			dropped = append(dropped, m)
			continue
		}
		d.ApplyMessage(m)
	}
	return dropped
}

// Upsert inserts c or merges it into the cached copy. The last message
// only moves forward; a non-negative unread count replaces the cached one.
func (d *Directory) Upsert(c chat.Conversation) bool {
	e, ok := d.convs[c.ID]
	if !ok {
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		d.convs[c.ID] = &entry{conv: c, counted: make(map[string]struct{})}
		return true
	}
	changed := false
	if c.LastMessage != nil && newerThan(*c.LastMessage, e.conv.LastMessage) {
		last := *c.LastMessage
		e.conv.LastMessage = &last
		e.conv.LastMessageAt = last.CreatedAt
		changed = true
	}
	if c.UnreadCount >= 0 && c.UnreadCount != e.conv.UnreadCount {
		e.conv.UnreadCount = c.UnreadCount
		changed = true
	}
	if e.conv.BookingID == "" && c.BookingID != "" {
		e.conv.BookingID = c.BookingID
		changed = true
	}
	return changed
}

// ApplyMessage folds a live message into its conversation. known is false
// when the conversation is missing; the message is then buffered and
// refetch tells the caller to start a reload.
func (d *Directory) ApplyMessage(m chat.Message) (changed, known, refetch bool) {
	e, ok := d.convs[m.ConversationID]
	if !ok {
		d.buffered = append(d.buffered, m)
		return false, false, d.BeginRefetch()
	}
	if newerThan(m, e.conv.LastMessage) {
		last := m
		last.Status = ""
		e.conv.LastMessage = &last
		e.conv.LastMessageAt = m.CreatedAt
		changed = true
	}
	if _, seen := e.counted[m.ID]; seen {
		return changed, true, false
	}
	e.counted[m.ID] = struct{}{}
	if m.SenderID == d.selfID || m.IsRead {
		return changed, true, false
	}
	if e.watermark != nil && !chat.Less(*e.watermark, m) {
		return changed, true, false
	}
	e.conv.UnreadCount++
	return true, true, false
}

// SetUnread replaces the unread count of a known conversation.
func (d *Directory) SetUnread(conversationID string, n int) bool {
	e, ok := d.convs[conversationID]
	if !ok {
		return false
	}
	if n < 0 {
		n = 0
	}
	if e.conv.UnreadCount == n {
		return false
	}
	e.conv.UnreadCount = n
	return true
}

func (d *Directory) Get(conversationID string) (chat.Conversation, bool) {
	e, ok := d.convs[conversationID]
	if !ok {
		return chat.Conversation{}, false
	}
	return e.conv, true
}

// List returns conversations by last activity, newest first, ties by id.
func (d *Directory) List() []chat.Conversation {
	out := make([]chat.Conversation, 0, len(d.convs))
	for _, e := range d.convs {
		out = append(out, e.conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return chat.MoreRecent(out[i], out[j])
	})
	return out
}

// TotalUnread sums unread counts across conversations.
func (d *Directory) TotalUnread() int {
	n := 0
	for _, e := range d.convs {
		n += e.conv.UnreadCount
	}
	return n
}

// Buffered reports how many messages wait for a reload.
func (d *Directory) Buffered() int { return len(d.buffered) }

func newerThan(m chat.Message, last *chat.Message) bool {
	return last == nil || chat.Less(*last, m)
}
