// Package messaging is the gateway's client for the messaging service.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"rentme-realtime/internal/domain/chat"
	pb "rentme-realtime/internal/proto/messagingv1"
)

// Config defines gRPC client settings.
type Config struct {
	Addr        string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Observer records call latency; code is the gRPC status code name.
type Observer func(method, code string, elapsed time.Duration)

// Client wraps the messaging-service gRPC API and maps results to chat
// domain types.
type Client struct {
	conn        *grpc.ClientConn
	svc         pb.MessagingServiceClient
	callTimeout time.Duration
	logger      *slog.Logger
	observe     Observer
}

// NewClient connects to messaging-service. The connection is established
// lazily; DialTimeout bounds the initial readiness wait.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger, observe Observer) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("messaging: address required")
	}
	conn, err := grpc.NewClient(cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(pb.CodecName)),
	)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("messaging grpc client ready", "addr", cfg.Addr)
	}
	return newClient(conn, pb.NewMessagingServiceClient(conn), cfg, logger, observe), nil
}

// NewClientFromConn wraps an existing connection, e.g. a bufconn in tests.
func NewClientFromConn(conn *grpc.ClientConn, cfg Config, logger *slog.Logger) *Client {
	return newClient(conn, pb.NewMessagingServiceClient(conn), cfg, logger, nil)
}

func newClient(conn *grpc.ClientConn, svc pb.MessagingServiceClient, cfg Config, logger *slog.Logger, observe Observer) *Client {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Client{
		conn:        conn,
		svc:         svc,
		callTimeout: callTimeout,
		logger:      logger,
		observe:     observe,
	}
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Ready reports whether the connection is usable, connecting if idle.
func (c *Client) Ready(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("messaging: not connected")
	}
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// GetOrCreateConversationForBooking returns the booking's chat thread.
func (c *Client) GetOrCreateConversationForBooking(ctx context.Context, bookingID, ownerID, renterID string) (chat.Conversation, error) {
	req := &pb.GetOrCreateConversationForBookingRequest{
		BookingId: bookingID,
		OwnerId:   ownerID,
		RenterId:  renterID,
	}
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.GetOrCreateConversationForBooking(callCtx, req)
	c.record("GetOrCreateConversationForBooking", start, err)
	if err != nil {
		return chat.Conversation{}, err
	}
	return mapConversation(resp.GetConversation()), nil
}

// GetConversation loads conversation metadata. A non-empty viewerID fills
// UnreadCount for that participant.
func (c *Client) GetConversation(ctx context.Context, id, viewerID string) (chat.Conversation, error) {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.GetConversation(callCtx, &pb.GetConversationRequest{ConversationId: id, ViewerId: viewerID})
	c.record("GetConversation", start, err)
	if err != nil {
		return chat.Conversation{}, err
	}
	return mapConversation(resp.GetConversation()), nil
}

// ListConversations returns one page of the user's conversations and the
// cursor of the next page.
func (c *Client) ListConversations(ctx context.Context, userID string, limit int, cursor string) ([]chat.Conversation, string, error) {
	req := &pb.ListConversationsRequest{
		UserId: userID,
		Limit:  int32(limit),
		Cursor: cursor,
	}
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.ListConversations(callCtx, req)
	c.record("ListConversations", start, err)
	if err != nil {
		return nil, "", err
	}
	items := make([]chat.Conversation, 0, len(resp.GetConversations()))
	for _, conv := range resp.GetConversations() {
		items = append(items, mapConversation(conv))
	}
	return items, resp.NextCursor, nil
}

// SendMessage persists a message. duplicate is true when clientID matched
// a message stored earlier.
func (c *Client) SendMessage(ctx context.Context, conversationID, senderID, content string, msgType chat.MessageType, clientID string) (chat.Message, bool, error) {
	req := &pb.SendMessageRequest{
		ConversationId: conversationID,
		SenderId:       senderID,
		Content:        content,
		MessageType:    string(msgType),
		ClientId:       clientID,
	}
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.SendMessage(callCtx, req)
	c.record("SendMessage", start, err)
	if err != nil {
		return chat.Message{}, false, err
	}
	return mapMessage(resp.GetMessage()), resp.Duplicate, nil
}

// ListMessages returns one page, oldest first, and the cursor of the
// previous page.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, string, error) {
	req := &pb.ListMessagesRequest{
		ConversationId: conversationID,
		Limit:          int32(limit),
		Before:         before,
	}
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.ListMessages(callCtx, req)
	c.record("ListMessages", start, err)
	if err != nil {
		return nil, "", err
	}
	items := make([]chat.Message, 0, len(resp.GetMessages()))
	for _, msg := range resp.GetMessages() {
		items = append(items, mapMessage(msg))
	}
	return items, resp.NextCursor, nil
}

// MarkMessageRead marks a message read on behalf of readerID. changed is
// false when it was already read.
func (c *Client) MarkMessageRead(ctx context.Context, conversationID, messageID, readerID string) (chat.Message, bool, error) {
	req := &pb.MarkMessageReadRequest{
		ConversationId: conversationID,
		MessageId:      messageID,
		ReaderId:       readerID,
	}
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	start := time.Now()
	resp, err := c.svc.MarkMessageRead(callCtx, req)
	c.record("MarkMessageRead", start, err)
	if err != nil {
		return chat.Message{}, false, err
	}
	return mapMessage(resp.GetMessage()), resp.Changed, nil
}

func (c *Client) wrapCall(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.callTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.observe == nil {
		return
	}
	c.observe(method, status.Code(err).String(), time.Since(start))
}

func mapConversation(conv *pb.Conversation) chat.Conversation {
	if conv == nil {
		return chat.Conversation{}
	}
	out := chat.Conversation{
		ID:            conv.Id,
		BookingID:     conv.BookingId,
		OwnerID:       conv.OwnerId,
		RenterID:      conv.RenterId,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
		UnreadCount:   int(conv.UnreadCount),
	}
	if conv.LastMessage != nil {
		last := mapMessage(conv.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func mapMessage(msg *pb.Message) chat.Message {
	if msg == nil {
		return chat.Message{}
	}
	return chat.Message{
		ID:             msg.Id,
		ConversationID: msg.ConversationId,
		SenderID:       msg.SenderId,
		Content:        msg.Content,
		Type:           chat.MessageType(msg.MessageType),
		ClientID:       msg.ClientId,
		CreatedAt:      msg.CreatedAt,
		IsRead:         msg.IsRead,
		Status:         chat.StatusConfirmed,
	}
}
