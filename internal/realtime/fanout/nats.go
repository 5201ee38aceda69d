package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATS publishes deliveries on one core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logger != nil && err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logger != nil {
				logger.Info("nats reconnected", "url", c.ConnectedUrl())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func NewNATS(conn *nats.Conn, subject string, logger *slog.Logger) *NATS {
	return &NATS{conn: conn, subject: subject, logger: logger}
}

func (n *NATS) Publish(ctx context.Context, d Delivery) error {
	payload, err := encode(d)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, payload)
}

func (n *NATS) Subscribe(ctx context.Context, h Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		d, err := decode(msg.Data)
		if err != nil {
			if n.logger != nil {
				n.logger.Warn("dropping fanout message", "subject", msg.Subject, "error", err)
			}
			return
		}
		h(d)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}

// Close removes subscriptions. The connection belongs to the caller.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var firstErr error
	for _, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.subs = nil
	return firstErr
}
