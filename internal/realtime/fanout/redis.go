package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis publishes deliveries on one pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedis(client *redis.Client, channel string, logger *slog.Logger) *Redis {
	return &Redis{client: client, channel: channel, logger: logger}
}

func (r *Redis) Publish(ctx context.Context, d Delivery) error {
	payload, err := encode(d)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.mu.Lock()
	r.subs = append(r.subs, ps)
	r.mu.Unlock()

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			d, err := decode([]byte(msg.Payload))
			if err != nil {
				if r.logger != nil {
					r.logger.Warn("dropping fanout message", "channel", msg.Channel, "error", err)
				}
				continue
			}
			h(d)
		}
	}()
	return nil
}

// Close ends subscriptions. The client belongs to the caller.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, ps := range r.subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.subs = nil
	return firstErr
}
