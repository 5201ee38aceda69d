package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"nhooyr.io/websocket"
)

// CloseUnauthorized is the close status the gateway uses when a session's
// credential stops being valid.
const CloseUnauthorized websocket.StatusCode = 4401

// WSTransport dials the gateway's /ws endpoint with a bearer credential.
type WSTransport struct {
	URL        string
	HTTPClient *http.Client
	ReadLimit  int64
}

func NewWSTransport(url string, httpClient *http.Client) *WSTransport {
	return &WSTransport{URL: url, HTTPClient: httpClient, ReadLimit: 1 << 20}
}

func (t *WSTransport) Dial(ctx context.Context, credential string) (Conn, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, &AuthError{Reason: "missing credential"}
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	conn, resp, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		HTTPClient: t.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Reason: resp.Status, Err: err}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}
	if t.ReadLimit > 0 {
		conn.SetReadLimit(t.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == CloseUnauthorized {
				return nil, &AuthError{Reason: "session revoked", Err: err}
			}
			return nil, &TransportError{Op: "read", Err: err}
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *wsConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
