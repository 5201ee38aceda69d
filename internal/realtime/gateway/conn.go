package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"rentme-realtime/internal/realtime/wire"
)

// CloseUnauthorized tells the client its credential is no longer valid.
const CloseUnauthorized = 4401

// Conn is one authenticated websocket. The read pump dispatches client
// events in order; the write pump owns every write to the socket.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	opts   Options

	typing *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
	// closeCode and closeText are read by the write pump after done.
	closeCode int
	closeText string
}

func newConn(id, userID string, ws *websocket.Conn, opts Options) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, opts.SendBuffer),
		opts:   opts,
		typing: rate.NewLimiter(rate.Limit(opts.TypingRate), opts.TypingBurst),
		done:   make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

// enqueue queues a frame without blocking. A full buffer marks the client
// as too slow and closes the connection.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.shutdown(websocket.CloseTryAgainLater, "send buffer full")
		return false
	}
}

// sendEvent encodes ev for this connection only.
func (c *Conn) sendEvent(ev wire.Event) bool {
	frame, err := wire.Encode(ev)
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

// shutdown asks the write pump to send a close frame and stop. The first
// call wins.
func (c *Conn) shutdown(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

func (c *Conn) slow() bool {
	return c.closeCode == websocket.CloseTryAgainLater
}

// readPump reads frames until the socket fails, handing each decoded
// event to dispatch.
func (c *Conn) readPump(ctx context.Context, dispatch func(context.Context, *Conn, wire.Event), reject func(*Conn, error)) {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		typ, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		ev, err := wire.Decode(raw)
		if err == nil && !wire.FromClient(ev.EventName()) {
			err = errServerEvent
		}
		if err != nil {
			reject(c, err)
			continue
		}
		dispatch(ctx, c, ev)
	}
}

var errServerEvent = errors.New("event is not accepted from clients")

// writePump drains the send buffer and keeps the connection alive with
// pings. It exits on write failure or shutdown.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
			}
			return
		}
	}
}

// flush writes frames queued before shutdown, such as a final error,
// unless the connection was closed for being slow.
func (c *Conn) flush() {
	if c.slow() {
		return
	}
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
