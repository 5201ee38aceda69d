// Package messaging implements the rentme.messaging.v1 gRPC service on
// top of a Store.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentme-realtime/internal/domain/chat"
	pb "rentme-realtime/internal/proto/messagingv1"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Server implements the MessagingService gRPC contract.
type Server struct {
	pb.UnimplementedMessagingServiceServer
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
}

// GetOrCreateConversationForBooking returns the booking's owner<->renter
// thread, creating it on first use.
func (s *Server) GetOrCreateConversationForBooking(ctx context.Context, req *pb.GetOrCreateConversationForBookingRequest) (*pb.GetConversationResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	bookingID := strings.TrimSpace(req.BookingId)
	ownerID := strings.TrimSpace(req.OwnerId)
	renterID := strings.TrimSpace(req.RenterId)
	if bookingID == "" {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	if err := chat.ValidateParticipants(ownerID, renterID); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	conversation, err := s.Store.FindConversationByBooking(ctx, bookingID)
	switch {
	case err == nil:
		if conversation.OwnerID != ownerID || conversation.RenterID != renterID {
			return nil, status.Error(codes.FailedPrecondition, "booking conversation has different participants")
		}
		return &pb.GetConversationResponse{Conversation: toProtoConversation(conversation)}, nil
	case !errors.Is(err, chat.ErrConversationNotFound):
		return nil, status.Errorf(codes.Internal, "lookup conversation: %v", err)
	}

	conversation, err = s.Store.CreateConversation(ctx, bookingID, ownerID, renterID, s.now())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create conversation: %v", err)
	}
	if s.Logger != nil {
		s.Logger.Info("conversation created", "id", conversation.ID, "booking_id", bookingID)
	}
	return &pb.GetConversationResponse{Conversation: toProtoConversation(conversation), Created: true}, nil
}

// GetConversation fetches a conversation by id.
func (s *Server) GetConversation(ctx context.Context, req *pb.GetConversationRequest) (*pb.GetConversationResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	conversation, err := s.loadConversation(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}
	if viewer := strings.TrimSpace(req.ViewerId); viewer != "" && conversation.HasParticipant(viewer) {
		unread, err := s.Store.CountUnread(ctx, conversation.ID, viewer)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "count unread: %v", err)
		}
		conversation.UnreadCount = unread
	}
	return &pb.GetConversationResponse{Conversation: toProtoConversation(conversation)}, nil
}

// ListConversations returns the user's conversations, most recent first,
// each carrying the user's unread count.
func (s *Server) ListConversations(ctx context.Context, req *pb.ListConversationsRequest) (*pb.ListConversationsResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	userID := strings.TrimSpace(req.UserId)
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	cursorTime, cursorID, err := parseCursor(req.Cursor)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid cursor")
	}

	conversations, err := s.Store.ListConversations(ctx, userID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list conversations: %v", err)
	}
	limit := normalizeLimit(int(req.Limit))

	resp := &pb.ListConversationsResponse{Conversations: make([]*pb.Conversation, 0, min(limit, len(conversations)))}
	for _, conv := range conversations {
		if cursorID != "" && !beforeCursor(conv, cursorTime, cursorID) {
			continue
		}
		unread, err := s.Store.CountUnread(ctx, conv.ID, userID)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "count unread: %v", err)
		}
		conv.UnreadCount = unread
		resp.Conversations = append(resp.Conversations, toProtoConversation(conv))
		if len(resp.Conversations) == limit {
			resp.NextCursor = buildCursor(conv)
			break
		}
	}
	return resp, nil
}

// ListMessages returns one page of messages, oldest first. NextCursor
// points at the oldest returned message when older ones may exist.
func (s *Server) ListMessages(ctx context.Context, req *pb.ListMessagesRequest) (*pb.ListMessagesResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	conversation, err := s.loadConversation(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}
	limit := normalizeLimit(int(req.Limit))
	messages, err := s.Store.ListMessages(ctx, conversation.ID, limit, strings.TrimSpace(req.Before))
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			return nil, status.Error(codes.InvalidArgument, "invalid before cursor")
		}
		return nil, status.Errorf(codes.Internal, "list messages: %v", err)
	}
	resp := &pb.ListMessagesResponse{Messages: make([]*pb.Message, 0, len(messages))}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, toProtoMessage(msg))
	}
	if len(messages) == limit {
		resp.NextCursor = messages[0].ID
	}
	return resp, nil
}

// SendMessage stores a message from a participant. A repeated ClientId
// from the same sender returns the stored message instead of a copy.
func (s *Server) SendMessage(ctx context.Context, req *pb.SendMessageRequest) (*pb.SendMessageResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	senderID := strings.TrimSpace(req.SenderId)
	clientID := strings.TrimSpace(req.ClientId)
	msgType, err := chat.ParseMessageType(req.MessageType)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" || senderID == "" {
		return nil, status.Error(codes.InvalidArgument, "conversation_id, sender_id and content are required")
	}
	conversation, err := s.loadConversation(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, status.Error(codes.PermissionDenied, chat.ErrNotParticipant.Error())
	}

	if clientID != "" {
		existing, err := s.Store.FindMessageByClientID(ctx, conversation.ID, senderID, clientID)
		switch {
		case err == nil:
			return &pb.SendMessageResponse{Message: toProtoMessage(existing), Duplicate: true}, nil
		case !errors.Is(err, chat.ErrMessageNotFound):
			return nil, status.Errorf(codes.Internal, "lookup client id: %v", err)
		}
	}

	msg := chat.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Content:        req.Content,
		Type:           msgType,
		ClientID:       clientID,
		CreatedAt:      s.now(),
	}
	if err := msg.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	stored, err := s.Store.AddMessage(ctx, msg)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "save message: %v", err)
	}
	return &pb.SendMessageResponse{Message: toProtoMessage(stored)}, nil
}

// MarkMessageRead flips a message to read. Only the recipient may do so;
// marking an already read message reports Changed=false.
func (s *Server) MarkMessageRead(ctx context.Context, req *pb.MarkMessageReadRequest) (*pb.MarkMessageReadResponse, error) {
	if s.Store == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	readerID := strings.TrimSpace(req.ReaderId)
	messageID := strings.TrimSpace(req.MessageId)
	if readerID == "" || messageID == "" {
		return nil, status.Error(codes.InvalidArgument, "message_id and reader_id are required")
	}
	conversation, err := s.loadConversation(ctx, req.ConversationId)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(readerID) {
		return nil, status.Error(codes.PermissionDenied, chat.ErrNotParticipant.Error())
	}
	msg, err := s.Store.GetMessage(ctx, conversation.ID, messageID)
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			return nil, status.Error(codes.NotFound, "message not found")
		}
		return nil, status.Errorf(codes.Internal, "load message: %v", err)
	}
	if msg.SenderID == readerID {
		return nil, status.Error(codes.PermissionDenied, chat.ErrNotRecipient.Error())
	}
	if msg.IsRead {
		return &pb.MarkMessageReadResponse{Message: toProtoMessage(msg)}, nil
	}
	if err := s.Store.MarkMessageRead(ctx, conversation.ID, messageID); err != nil {
		return nil, status.Errorf(codes.Internal, "mark read: %v", err)
	}
	msg.IsRead = true
	return &pb.MarkMessageReadResponse{Message: toProtoMessage(msg), Changed: true}, nil
}

func (s *Server) loadConversation(ctx context.Context, id string) (chat.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return chat.Conversation{}, status.Error(codes.InvalidArgument, "conversation_id is required")
	}
	conversation, err := s.Store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			return chat.Conversation{}, status.Error(codes.NotFound, "conversation not found")
		}
		return chat.Conversation{}, status.Errorf(codes.Internal, "load conversation: %v", err)
	}
	return conversation, nil
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
