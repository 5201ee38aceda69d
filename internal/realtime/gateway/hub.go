package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/realtime/fanout"
	"rentme-realtime/internal/realtime/wire"
)

type connSet map[*Conn]struct{}

func (s connSet) add(c *Conn) { s[c] = struct{}{} }

// Hub indexes this instance's connections by room, by user and by
// notification subscription. Deliveries always travel through the broker,
// so local and remote audiences are resolved the same way.
type Hub struct {
	id      string
	broker  fanout.Broker
	logger  *slog.Logger
	metrics *obs.Metrics

	mu     sync.RWMutex
	rooms  map[string]connSet
	users  map[string]connSet
	notify map[string]connSet
	// joined tracks each connection's rooms for cleanup.
	joined map[*Conn]map[string]struct{}
}

func NewHub(broker fanout.Broker, logger *slog.Logger, metrics *obs.Metrics) *Hub {
	return &Hub{
		id:      uuid.NewString(),
		broker:  broker,
		logger:  logger,
		metrics: metrics,
		rooms:   make(map[string]connSet),
		users:   make(map[string]connSet),
		notify:  make(map[string]connSet),
		joined:  make(map[*Conn]map[string]struct{}),
	}
}

// Start subscribes the hub to the broker.
func (h *Hub) Start(ctx context.Context) error {
	return h.broker.Subscribe(ctx, h.deliver)
}

// Register adds c to the user index.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.userID]
	if !ok {
		set = make(connSet)
		h.users[c.userID] = set
	}
	set.add(c)
	h.joined[c] = make(map[string]struct{})
	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
}

// Unregister removes c everywhere. It returns the rooms c had joined and
// whether c was the user's last connection on this instance.
func (h *Hub) Unregister(c *Conn) (rooms []string, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.joined[c]
	if !ok {
		return nil, false
	}
	delete(h.joined, c)
	for room := range joined {
		rooms = append(rooms, room)
		removeFrom(h.rooms, room, c)
	}
	removeFrom(h.notify, c.userID, c)
	removeFrom(h.users, c.userID, c)
	_, stillOnline := h.users[c.userID]
	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	return rooms, !stillOnline
}

func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.joined[c]
	if !ok {
		return
	}
	joined[room] = struct{}{}
	set, ok := h.rooms[room]
	if !ok {
		set = make(connSet)
		h.rooms[room] = set
	}
	set.add(c)
}

func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if joined, ok := h.joined[c]; ok {
		delete(joined, room)
	}
	removeFrom(h.rooms, room, c)
}

func (h *Hub) InRoom(c *Conn, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[c][room]
	return ok
}

func (h *Hub) SubscribeNotifications(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.joined[c]; !ok {
		return
	}
	set, ok := h.notify[c.userID]
	if !ok {
		set = make(connSet)
		h.notify[c.userID] = set
	}
	set.add(c)
}

// Online reports whether userID has a connection on this instance.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[userID]
	return ok
}

// Connections returns a snapshot of every registered connection.
func (h *Hub) Connections() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.joined))
	for c := range h.joined {
		out = append(out, c)
	}
	return out
}

// Publish encodes ev once and hands it to the broker with its audience.
func (h *Hub) Publish(ctx context.Context, ev wire.Event, audience fanout.Delivery) error {
	frame, err := wire.Encode(ev)
	if err != nil {
		return err
	}
	audience.Origin = h.id
	audience.Event = ev.EventName()
	audience.Frame = frame
	if err := h.broker.Publish(ctx, audience); err != nil {
		if h.metrics != nil {
			h.metrics.FanoutPublishErrs.Inc()
		}
		return fmt.Errorf("publish %s: %w", ev.EventName(), err)
	}
	return nil
}

// DeliverNotification pushes n to the user's notification subscribers.
func (h *Hub) DeliverNotification(ctx context.Context, n notification.Notification) error {
	return h.Publish(ctx, wire.Notification{Notification: n}, fanout.Delivery{NotifyUser: n.UserID})
}

// deliver resolves the audience against local connections. A connection
// matching several audience parts receives the frame once.
func (h *Hub) deliver(d fanout.Delivery) {
	targets := make(connSet)
	h.mu.RLock()
	if d.Room != "" {
		for c := range h.rooms[d.Room] {
			targets.add(c)
		}
	}
	for _, user := range d.Users {
		for c := range h.users[user] {
			targets.add(c)
		}
	}
	if d.NotifyUser != "" {
		for c := range h.notify[d.NotifyUser] {
			targets.add(c)
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		if d.ExcludeUser != "" && c.userID == d.ExcludeUser {
			continue
		}
		if c.enqueue(d.Frame) && h.metrics != nil {
			h.metrics.OutboundEvents.WithLabelValues(string(d.Event)).Inc()
		}
	}
}

func removeFrom(index map[string]connSet, key string, c *Conn) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(index, key)
	}
}
