package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	appoutbox "rentme-realtime/internal/app/outbox"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

var ErrMalformedEvent = errors.New("notifications: malformed event")

// CloudEvent is the envelope published by the marketplace outbox workers.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// Name strips the version suffix: "booking.accepted.v1" -> "booking.accepted".
func (e CloudEvent) Name() string {
	name := strings.TrimSpace(e.Type)
	if idx := strings.LastIndex(name, ".v"); idx > 0 && isDigits(name[idx+2:]) {
		return name[:idx]
	}
	return name
}

// eventData is the subset of booking and payment payloads used here.
// Keys match case-insensitively, so both "bookingId" and "BookingID"
// decode.
type eventData struct {
	BookingID string  `json:"bookingId"`
	ListingID string  `json:"listingId"`
	GuestID   string  `json:"guestId"`
	HostID    string  `json:"hostId"`
	PaymentID string  `json:"paymentId"`
	Reason    string  `json:"reason"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// Ingestor turns booking and payment events into notifications.
type Ingestor struct {
	Notifier      *Service
	Inbox         Inbox
	Conversations ConversationOpener
	// Outbox, when set, receives conversation.started for every booking
	// conversation the ingestor opens.
	Outbox appoutbox.Outbox
	Logger *slog.Logger
}

// Handle processes one CloudEvent payload. Malformed payloads are logged
// and dropped so they do not block the partition; infrastructure errors
// are returned for redelivery.
func (i *Ingestor) Handle(ctx context.Context, topic string, payload []byte) error {
	var evt CloudEvent
	if err := json.Unmarshal(payload, &evt); err != nil || strings.TrimSpace(evt.ID) == "" || evt.Type == "" {
		i.warn("dropping malformed event", "topic", topic, "error", err)
		return nil
	}
	var data eventData
	if len(evt.Data) > 0 {
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			i.warn("dropping event with malformed data", "topic", topic, "event_id", evt.ID, "type", evt.Type, "error", err)
			return nil
		}
	}

	name := evt.Name()
	notes := mapEvent(evt, data)
	opens := opensConversation(name)
	if len(notes) == 0 && !opens {
		if i.Logger != nil {
			i.Logger.Debug("event ignored", "topic", topic, "event_id", evt.ID, "type", evt.Type)
		}
		return nil
	}

	if i.Inbox != nil {
		seen, err := i.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return fmt.Errorf("inbox %s: %w", evt.ID, err)
		}
		if seen {
			if i.Logger != nil {
				i.Logger.Debug("duplicate event skipped", "event_id", evt.ID, "type", evt.Type)
			}
			return nil
		}
	}

	if opens && i.Conversations != nil {
		if data.BookingID == "" || data.HostID == "" || data.GuestID == "" {
			i.warn("cannot open conversation without booking participants", "event_id", evt.ID, "type", evt.Type)
		} else if conv, err := i.Conversations.GetOrCreateConversationForBooking(ctx, data.BookingID, data.HostID, data.GuestID); err != nil {
			i.warn("open booking conversation failed", "booking_id", data.BookingID, "error", err)
		} else {
			i.recordStarted(ctx, conv)
		}
	}

	if len(notes) == 0 {
		i.warn("event has no recipients", "event_id", evt.ID, "type", evt.Type)
		return nil
	}
	for _, n := range notes {
		if _, _, err := i.Notifier.Notify(ctx, n); err != nil {
			i.release(ctx, evt.ID)
			return fmt.Errorf("notify %s: %w", n.UserID, err)
		}
	}
	return nil
}

// recordStarted keys the record by conversation, so accepted and
// confirmed events for one booking collapse into one record.
func (i *Ingestor) recordStarted(ctx context.Context, conv chat.Conversation) {
	rec := appoutbox.Recorder{Outbox: i.Outbox, NewID: func() string { return "conversation:" + conv.ID }}
	err := rec.Record(ctx, chat.ConversationStarted{
		ConversationID: conv.ID,
		BookingID:      conv.BookingID,
		OwnerID:        conv.OwnerID,
		RenterID:       conv.RenterID,
		At:             conv.CreatedAt,
	})
	if err != nil {
		i.warn("record conversation.started failed", "conversation_id", conv.ID, "error", err)
	}
}

// release forgets a claimed event id so redelivery processes it again.
// Notifications already stored are deduplicated by id.
func (i *Ingestor) release(ctx context.Context, eventID string) {
	if i.Inbox == nil {
		return
	}
	if err := i.Inbox.Release(ctx, eventID); err != nil {
		i.warn("inbox release failed", "event_id", eventID, "error", err)
	}
}

func (i *Ingestor) warn(msg string, args ...any) {
	if i.Logger != nil {
		i.Logger.Warn(msg, args...)
	}
}

func opensConversation(name string) bool {
	return name == "booking.accepted" || name == "booking.confirmed"
}

type template struct {
	typ     notification.Type
	title   string
	message func(eventData) string
	toHost  bool
	toGuest bool
}

var templates = map[string]template{
	"booking.requested": {
		typ: notification.TypeBooking, title: "New booking request", toHost: true,
		message: func(d eventData) string { return "A guest requested booking " + d.BookingID + "." },
	},
	"booking.accepted": {
		typ: notification.TypeBooking, title: "Booking accepted", toGuest: true,
		message: func(d eventData) string {
			return "Your booking " + d.BookingID + " was accepted. You can now message your host."
		},
	},
	"booking.declined": {
		typ: notification.TypeBooking, title: "Booking declined", toGuest: true,
		message: func(d eventData) string { return withReason("Your booking "+d.BookingID+" was declined.", d.Reason) },
	},
	"booking.confirmed": {
		typ: notification.TypeBooking, title: "Booking confirmed", toHost: true, toGuest: true,
		message: func(d eventData) string { return "Booking " + d.BookingID + " is confirmed." },
	},
	"booking.cancelled": {
		typ: notification.TypeBooking, title: "Booking cancelled", toHost: true, toGuest: true,
		message: func(d eventData) string { return withReason("Booking "+d.BookingID+" was cancelled.", d.Reason) },
	},
	"booking.checkin_completed": {
		typ: notification.TypeBooking, title: "Guest checked in", toHost: true,
		message: func(d eventData) string { return "The guest checked in for booking " + d.BookingID + "." },
	},
	"booking.checkout_completed": {
		typ: notification.TypeBooking, title: "Stay completed", toHost: true, toGuest: true,
		message: func(d eventData) string { return "Booking " + d.BookingID + " is complete. Leave a review!" },
	},
	"payment.succeeded": {
		typ: notification.TypePayment, title: "Payment received", toGuest: true, toHost: true,
		message: func(d eventData) string { return withAmount("Payment for booking "+d.BookingID+" succeeded", d) },
	},
	"payment.failed": {
		typ: notification.TypePayment, title: "Payment failed", toGuest: true,
		message: func(d eventData) string {
			return withReason("Payment for booking "+d.BookingID+" failed.", d.Reason)
		},
	},
	"payment.refunded": {
		typ: notification.TypePayment, title: "Refund issued", toGuest: true,
		message: func(d eventData) string { return withAmount("A refund for booking "+d.BookingID+" was issued", d) },
	},
}

// mapEvent builds the notifications an event produces. Ids derive from the
// event id and the recipient so redelivery yields the same ids.
func mapEvent(evt CloudEvent, data eventData) []notification.Notification {
	tpl, ok := templates[evt.Name()]
	if !ok {
		return nil
	}
	at := evt.Time.UTC()
	var recipients []string
	if tpl.toGuest && data.GuestID != "" {
		recipients = append(recipients, data.GuestID)
	}
	if tpl.toHost && data.HostID != "" && data.HostID != data.GuestID {
		recipients = append(recipients, data.HostID)
	}
	out := make([]notification.Notification, 0, len(recipients))
	for _, user := range recipients {
		n := notification.Notification{
			ID:        evt.ID + ":" + user,
			UserID:    user,
			Type:      tpl.typ,
			Title:     tpl.title,
			Message:   tpl.message(data),
			Data:      map[string]string{"event": evt.Name()},
			CreatedAt: at,
		}
		if data.BookingID != "" {
			n.Data["bookingId"] = data.BookingID
		}
		if data.ListingID != "" {
			n.Data["listingId"] = data.ListingID
		}
		if data.PaymentID != "" {
			n.Data["paymentId"] = data.PaymentID
		}
		out = append(out, n)
	}
	return out
}

func withReason(text, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return text
	}
	return text + " Reason: " + reason + "."
}

func withAmount(text string, d eventData) string {
	if d.Amount <= 0 || d.Currency == "" {
		return text + "."
	}
	return fmt.Sprintf("%s: %.2f %s.", text, d.Amount, d.Currency)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
