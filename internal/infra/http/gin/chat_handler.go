package ginserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentme-realtime/internal/app/dto"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/infra/storage/s3"
)

// ChatMessaging is the part of the messaging client the REST layer reads.
type ChatMessaging interface {
	GetConversation(ctx context.Context, id, viewerID string) (chat.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int, cursor string) ([]chat.Conversation, string, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, string, error)
}

// AttachmentStore keeps uploaded chat images.
type AttachmentStore interface {
	PutAttachment(ctx context.Context, conversationID, filename string, r io.Reader, size int64, contentType string) (s3.Object, error)
}

// ChatHandler bridges HTTP with the messaging gRPC client.
type ChatHandler struct {
	Messaging     ChatMessaging
	Attachments   AttachmentStore
	MaxAttachment int64
	Logger        *slog.Logger
}

// ListConversations returns the caller's conversations, most recent first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if h.Messaging == nil {
		c.JSON(http.StatusServiceUnavailable, dto.Error{Error: "messaging unavailable"})
		return
	}
	limit := parsePositiveIntStrict(c.Query("limit"), 50)
	items, next, err := h.Messaging.ListConversations(c.Request.Context(), p.UserID, limit, c.Query("cursor"))
	if err != nil {
		h.respondMessagingError(c, err, "list conversations", "user_id", p.UserID)
		return
	}
	if items == nil {
		items = []chat.Conversation{}
	}
	c.JSON(http.StatusOK, dto.ConversationList{Items: items, NextCursor: next})
}

// ListMessages returns one page of a conversation, oldest first.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID, ok := h.participantConversation(c, p.UserID)
	if !ok {
		return
	}
	limit := parsePositiveIntStrict(c.Query("limit"), 50)
	items, next, err := h.Messaging.ListMessages(c.Request.Context(), conversationID, limit, c.Query("before"))
	if err != nil {
		h.respondMessagingError(c, err, "list messages", "conversation_id", conversationID, "user_id", p.UserID)
		return
	}
	if items == nil {
		items = []chat.Message{}
	}
	c.JSON(http.StatusOK, dto.MessageList{Items: items, NextCursor: next})
}

// UploadAttachment stores an image from the multipart "file" field and
// returns the URL to send as an image message.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if h.Attachments == nil {
		c.JSON(http.StatusServiceUnavailable, dto.Error{Error: "attachments are not configured"})
		return
	}
	conversationID, ok := h.participantConversation(c, p.UserID)
	if !ok {
		return
	}
	limit := h.MaxAttachment
	if limit <= 0 {
		limit = 10 << 20
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Error{Error: "file is required"})
		return
	}
	if header.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, dto.Error{Error: "file too large"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, dto.Error{Error: "only images are accepted"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Error{Error: "cannot read file"})
		return
	}
	defer file.Close()

	obj, err := h.Attachments.PutAttachment(c.Request.Context(), conversationID, header.Filename, file, header.Size, contentType)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("attachment upload failed", "conversation_id", conversationID, "user_id", p.UserID, "error", err)
		}
		c.JSON(http.StatusBadGateway, dto.Error{Error: "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, dto.Attachment{URL: obj.URL, ContentType: obj.ContentType, Size: obj.Size})
}

// participantConversation loads :id and checks the caller belongs to it.
func (h ChatHandler) participantConversation(c *gin.Context, userID string) (string, bool) {
	if h.Messaging == nil {
		c.JSON(http.StatusServiceUnavailable, dto.Error{Error: "messaging unavailable"})
		return "", false
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, dto.Error{Error: "conversation id is required"})
		return "", false
	}
	conv, err := h.Messaging.GetConversation(c.Request.Context(), conversationID, "")
	if err != nil {
		h.respondMessagingError(c, err, "load conversation", "conversation_id", conversationID, "user_id", userID)
		return "", false
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, dto.Error{Error: "not a chat participant"})
		return "", false
	}
	return conv.ID, true
}

func (h ChatHandler) respondMessagingError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("messaging call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			c.JSON(http.StatusNotFound, dto.Error{Error: "not found"})
			return
		case codes.InvalidArgument, codes.FailedPrecondition:
			c.JSON(http.StatusBadRequest, dto.Error{Error: st.Message()})
			return
		case codes.Unauthenticated, codes.PermissionDenied:
			c.JSON(http.StatusForbidden, dto.Error{Error: "forbidden"})
			return
		case codes.Unavailable, codes.DeadlineExceeded:
			c.JSON(http.StatusServiceUnavailable, dto.Error{Error: "messaging unavailable"})
			return
		}
	}
	c.JSON(http.StatusBadGateway, dto.Error{Error: "messaging unavailable"})
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
