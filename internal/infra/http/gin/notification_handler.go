package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-realtime/internal/app/dto"
	"rentme-realtime/internal/domain/notification"
)

type NotificationService interface {
	List(ctx context.Context, userID string, limit int) ([]notification.Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type NotificationHandler struct {
	Service NotificationService
	Logger  *slog.Logger
}

func (h NotificationHandler) List(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	items, unread, err := h.Service.List(c.Request.Context(), p.UserID, parsePositiveIntStrict(c.Query("limit"), 50))
	if err != nil {
		h.fail(c, err, "list notifications", p.UserID)
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	c.JSON(http.StatusOK, dto.NotificationList{Items: items, Unread: unread})
}

func (h NotificationHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Service.MarkRead(c.Request.Context(), p.UserID, c.Param("id")); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.Error{Error: "notification not found"})
			return
		}
		h.fail(c, err, "mark notification read", p.UserID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h NotificationHandler) MarkAllRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllRead(c.Request.Context(), p.UserID)
	if err != nil {
		h.fail(c, err, "mark all notifications read", p.UserID)
		return
	}
	c.JSON(http.StatusOK, dto.MarkedRead{Updated: n})
}

func (h NotificationHandler) fail(c *gin.Context, err error, action, userID string) {
	if h.Logger != nil {
		h.Logger.Error("notification request failed", "action", action, "user_id", userID, "error", err)
	}
	c.JSON(http.StatusInternalServerError, dto.Error{Error: "internal error"})
}
