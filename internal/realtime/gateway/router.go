package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appoutbox "rentme-realtime/internal/app/outbox"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/realtime/fanout"
	"rentme-realtime/internal/realtime/wire"
)

// Messaging is the subset of the messaging service the gateway calls.
type Messaging interface {
	GetConversation(ctx context.Context, id, viewerID string) (chat.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string, msgType chat.MessageType, clientID string) (chat.Message, bool, error)
	MarkMessageRead(ctx context.Context, conversationID, messageID, readerID string) (chat.Message, bool, error)
}

// Notifier stores and pushes notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) (notification.Notification, bool, error)
}

const previewRunes = 80

// Router executes client events on behalf of a connection.
type Router struct {
	Hub       *Hub
	Messaging Messaging
	Notifier  Notifier
	Outbox    appoutbox.Outbox
	Logger    *slog.Logger
	Metrics   *obs.Metrics
	// Timeout bounds each event's downstream calls.
	Timeout time.Duration

	// participants caches conversation membership, which never changes.
	participants sync.Map
}

// Dispatch handles one decoded client event.
func (r *Router) Dispatch(ctx context.Context, c *Conn, ev wire.Event) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	var err error
	switch e := ev.(type) {
	case wire.JoinConversation:
		err = r.join(ctx, c, e)
	case wire.LeaveConversation:
		r.Hub.Leave(c, e.ConversationID)
	case wire.SendMessage:
		err = r.sendMessage(appoutbox.WithHeaders(ctx, map[string]string{"connection-id": c.id}), c, e)
	case wire.MarkMessageRead:
		err = r.markRead(ctx, c, e)
	case wire.Typing:
		err = r.typing(ctx, c, e)
	case wire.JoinNotifications:
		r.Hub.SubscribeNotifications(c)
	default:
		err = errServerEvent
	}
	outcome := "ok"
	if err != nil {
		outcome = r.fail(c, ev, err)
	}
	if r.Metrics != nil {
		r.Metrics.InboundEvents.WithLabelValues(string(ev.EventName()), outcome).Inc()
	}
}

// Reject answers a frame that failed to decode.
func (r *Router) Reject(c *Conn, err error) {
	if r.Metrics != nil {
		r.Metrics.InboundEvents.WithLabelValues("invalid", wire.CodeBadRequest).Inc()
	}
	if r.Logger != nil {
		r.Logger.Debug("rejected client frame", "user_id", c.userID, "error", err)
	}
	c.sendEvent(wire.ServerError{Code: wire.CodeBadRequest, Message: err.Error()})
}

func (r *Router) join(ctx context.Context, c *Conn, e wire.JoinConversation) error {
	conv, err := r.conversation(ctx, e.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(c.userID) {
		return errForbidden
	}
	r.Hub.Join(c, conv.ID)
	if peer := conv.Peer(c.userID); peer != "" && r.Hub.Online(peer) {
		c.sendEvent(wire.UserStatus{UserID: peer, Status: wire.StatusOnline})
	}
	return r.Hub.Publish(ctx, wire.UserStatus{UserID: c.userID, Status: wire.StatusOnline},
		fanout.Delivery{Room: conv.ID, ExcludeUser: c.userID})
}

func (r *Router) sendMessage(ctx context.Context, c *Conn, e wire.SendMessage) error {
	msgType, _ := chat.ParseMessageType(string(e.MessageType))
	msg, duplicate, err := r.Messaging.SendMessage(ctx, e.ConversationID, c.userID, e.Content, msgType, e.ClientID)
	if err != nil {
		return err
	}
	conv, err := r.conversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := r.Hub.Publish(ctx, wire.NewMessage{Message: msg},
		fanout.Delivery{Room: conv.ID, Users: conv.Participants()}); err != nil {
		return err
	}
	if duplicate {
		return nil
	}

	recipient := conv.Peer(c.userID)
	r.recordSent(ctx, conv, msg, recipient)
	if r.Notifier != nil && recipient != "" {
		n := notification.Notification{
			ID:      "message:" + msg.ID,
			UserID:  recipient,
			Type:    notification.TypeMessage,
			Title:   "New message",
			Message: preview(msg),
			Data: map[string]string{
				"conversationId": conv.ID,
				"messageId":      msg.ID,
				"senderId":       msg.SenderID,
			},
			CreatedAt: msg.CreatedAt,
		}
		if _, _, err := r.Notifier.Notify(ctx, n); err != nil && r.Logger != nil {
			r.Logger.Warn("message notification failed", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

// recordSent queues a message.sent event. Failures are logged; chat
// delivery does not depend on analytics.
func (r *Router) recordSent(ctx context.Context, conv chat.Conversation, msg chat.Message, recipient string) {
	if r.Outbox == nil {
		return
	}
	ev := chat.MessageSent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		BookingID:      conv.BookingID,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		MessageType:    msg.Type,
		At:             msg.CreatedAt,
	}
	if err := (appoutbox.Recorder{Outbox: r.Outbox}).Record(ctx, ev); err != nil && r.Logger != nil {
		r.Logger.Warn("record message.sent failed", "message_id", msg.ID, "error", err)
	}
}

func (r *Router) markRead(ctx context.Context, c *Conn, e wire.MarkMessageRead) error {
	msg, changed, err := r.Messaging.MarkMessageRead(ctx, e.ConversationID, e.MessageID, c.userID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	conv, err := r.conversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	return r.Hub.Publish(ctx, wire.MessageRead{MessageID: msg.ID, ConversationID: conv.ID, ReadBy: c.userID},
		fanout.Delivery{Room: conv.ID, Users: conv.Participants()})
}

func (r *Router) typing(ctx context.Context, c *Conn, e wire.Typing) error {
	if !r.Hub.InRoom(c, e.ConversationID) {
		return errForbidden
	}
	if !c.typing.Allow() {
		if r.Metrics != nil {
			r.Metrics.DroppedEvents.WithLabelValues("typing_rate_limited").Inc()
		}
		return nil
	}
	return r.Hub.Publish(ctx, wire.UserTyping{ConversationID: e.ConversationID, UserID: c.userID, IsTyping: e.IsTyping},
		fanout.Delivery{Room: e.ConversationID, ExcludeUser: c.userID})
}

// conversation returns membership from cache, loading it once.
func (r *Router) conversation(ctx context.Context, id string) (chat.Conversation, error) {
	if v, ok := r.participants.Load(id); ok {
		return v.(chat.Conversation), nil
	}
	conv, err := r.Messaging.GetConversation(ctx, id, "")
	if err != nil {
		return chat.Conversation{}, err
	}
	r.participants.Store(id, chat.Conversation{ID: conv.ID, BookingID: conv.BookingID, OwnerID: conv.OwnerID, RenterID: conv.RenterID})
	return conv, nil
}

var errForbidden = errors.New("not a participant of this conversation")

// fail reports err to the client and returns the metrics outcome.
func (r *Router) fail(c *Conn, ev wire.Event, err error) string {
	code, text := classify(err)
	out := wire.ServerError{Code: code, Message: text}
	if send, ok := ev.(wire.SendMessage); ok {
		out.ClientID = send.ClientID
	}
	if r.Logger != nil {
		level := slog.LevelDebug
		if code == wire.CodeInternal || code == wire.CodeUnavailable {
			level = slog.LevelWarn
		}
		r.Logger.Log(context.Background(), level, "client event failed",
			"event", ev.EventName(), "user_id", c.userID, "code", code, "error", err)
	}
	c.sendEvent(out)
	return code
}

// classify maps downstream errors onto wire error codes.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, errForbidden):
		return wire.CodeForbidden, err.Error()
	case errors.Is(err, errServerEvent):
		return wire.CodeBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return wire.CodeUnavailable, "messaging service timed out"
	}
	st, ok := status.FromError(err)
	if !ok {
		return wire.CodeInternal, "internal error"
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return wire.CodeBadRequest, st.Message()
	case codes.NotFound, codes.PermissionDenied:
		return wire.CodeForbidden, st.Message()
	case codes.Unauthenticated:
		return wire.CodeUnauthorized, st.Message()
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return wire.CodeUnavailable, st.Message()
	default:
		return wire.CodeInternal, "internal error"
	}
}

func preview(msg chat.Message) string {
	if msg.Type == chat.MessageImage {
		return "Sent a photo"
	}
	text := strings.TrimSpace(msg.Content)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}

func (r *Router) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 10 * time.Second
	}
	return r.Timeout
}
