package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"rentme-realtime/internal/app/dto"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
)

// API is the REST surface a session reads from.
type API interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	ListNotifications(ctx context.Context) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// defaultPageSize is requested per page; the server may return fewer.
const defaultPageSize = 100

// HTTPAPI calls the gateway's REST endpoints with a bearer token. List
// calls follow nextCursor until the server reports no more pages.
type HTTPAPI struct {
	Client   *http.Client
	BaseURL  string
	Token    string
	PageSize int
	Logger   *slog.Logger
}

func NewHTTPAPI(baseURL, token string, client *http.Client) *HTTPAPI {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAPI{Client: client, BaseURL: strings.TrimRight(baseURL, "/"), Token: token}
}

// Me returns the user id the token belongs to.
func (a *HTTPAPI) Me(ctx context.Context) (dto.Me, error) {
	var out dto.Me
	err := a.do(ctx, http.MethodGet, "/api/v1/me", &out)
	return out, err
}

// ListConversations returns every conversation of the caller, most
// recent first.
func (a *HTTPAPI) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var all []chat.Conversation
	cursor := ""
	for {
		var page dto.ConversationList
		if err := a.do(ctx, http.MethodGet, "/api/v1/conversations?"+a.pageQuery("cursor", cursor), &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		next, err := nextCursor(cursor, page.NextCursor, len(page.Items))
		if err != nil || next == "" {
			return all, err
		}
		cursor = next
	}
}

// ListMessages returns the whole history of a conversation, oldest
// first. Pages arrive newest first and are prepended.
func (a *HTTPAPI) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages?"
	var all []chat.Message
	before := ""
	for {
		var page dto.MessageList
		if err := a.do(ctx, http.MethodGet, path+a.pageQuery("before", before), &page); err != nil {
			return nil, err
		}
		all = append(page.Items, all...)
		next, err := nextCursor(before, page.NextCursor, len(page.Items))
		if err != nil || next == "" {
			return all, err
		}
		before = next
	}
}

func (a *HTTPAPI) pageQuery(key, cursor string) string {
	size := a.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	q := url.Values{"limit": {strconv.Itoa(size)}}
	if cursor != "" {
		q.Set(key, cursor)
	}
	return q.Encode()
}

// nextCursor returns "" when paging is done and fails when the server
// repeats a cursor, which would otherwise loop forever.
func nextCursor(prev, next string, items int) (string, error) {
	if next == "" || items == 0 {
		return "", nil
	}
	if next == prev {
		return "", fmt.Errorf("api: pagination cursor %q did not advance", next)
	}
	return next, nil
}

func (a *HTTPAPI) ListNotifications(ctx context.Context) ([]notification.Notification, error) {
	var out dto.NotificationList
	if err := a.do(ctx, http.MethodGet, "/api/v1/notifications", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (a *HTTPAPI) MarkNotificationRead(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPost, "/api/v1/notifications/"+url.PathEscape(id)+"/read", nil)
}

func (a *HTTPAPI) MarkAllNotificationsRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil)
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		a.logError("api request failed", path, err)
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Reason: "api rejected credential"}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var body dto.Error
		msg := strings.TrimSpace(string(snippet))
		if json.Unmarshal(snippet, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		err := fmt.Errorf("api %s %s returned status %d: %s", method, path, resp.StatusCode, msg)
		a.logError("api returned error", path, err)
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		a.logError("api decode failed", path, err)
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a *HTTPAPI) logError(msg, path string, err error) {
	if a.Logger != nil {
		a.Logger.Error(msg, "path", path, "error", err)
	}
}
