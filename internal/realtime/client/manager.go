package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rentme-realtime/internal/clock"
	"rentme-realtime/internal/realtime/wire"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// StateChange is delivered to listeners on every transition. Err is set
// when the transition was caused by a failure; Delay is the wait before
// the next dial when State is reconnecting.
type StateChange struct {
	State   State
	Err     error
	Attempt int
	Delay   time.Duration
}

type ManagerOptions struct {
	Backoff      Backoff
	QueueLimit   int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

func (o *ManagerOptions) defaults() {
	if o.Backoff.Base <= 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = 256
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Manager owns the socket. It reconnects with backoff, re-announces room
// and notification subscriptions after every connect and queues reliable
// emits while offline. Subscriptions and queued events are written before
// any other emit reaches a fresh connection.
type Manager struct {
	transport Transport
	opts      ManagerOptions
	log       *slog.Logger

	// writeMu serializes socket writes and is taken before mu.
	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	credential    string
	conn          Conn
	gen           uint64
	attempt       int
	retry         *clock.Timer
	life          context.Context
	cancel        context.CancelFunc
	rooms         []string
	notifications bool
	queue         []wire.Event
	listeners     []func(StateChange)
	handlers      map[wire.Name][]func(wire.Event)
}

func NewManager(transport Transport, opts ManagerOptions) *Manager {
	opts.defaults()
	return &Manager{
		transport: transport,
		opts:      opts,
		log:       opts.Logger,
		state:     StateDisconnected,
		life:      context.Background(),
		handlers:  make(map[wire.Name][]func(wire.Event)),
	}
}

// OnStateChange registers a listener. Listeners run synchronously on the
// goroutine that caused the transition and must not block.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Handle registers fn for inbound events named name. Handlers run on the
// read goroutine in arrival order.
func (m *Manager) Handle(name wire.Name, fn func(wire.Event)) {
	m.mu.Lock()
	m.handlers[name] = append(m.handlers[name], fn)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// QueueLen reports how many reliable emits wait for a connection.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Rooms returns the conversations re-joined on every connect.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rooms...)
}

// Connect dials with credential. An auth failure is returned and leaves the
// manager disconnected. Any other failure is retried in the background and
// only shows up as a state change.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.credential = credential
	m.life, m.cancel = context.WithCancel(context.Background())
	m.attempt = 0
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.mu.Unlock()

	m.notify(StateChange{State: StateConnecting})
	return m.dial(ctx, gen)
}

// Disconnect closes the socket and stops reconnecting. Rooms and queued
// emits are kept for a later Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.retry.Stop()
	m.retry = nil
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.log.Info("realtime disconnected")
	m.notify(StateChange{State: StateDisconnected})
}

// Join adds conversationID to the rooms and announces it when connected.
func (m *Manager) Join(conversationID string) {
	m.subscribe(func() (wire.Event, bool) {
		for _, id := range m.rooms {
			if id == conversationID {
				return wire.JoinConversation{ConversationID: conversationID}, true
			}
		}
		m.rooms = append(m.rooms, conversationID)
		return wire.JoinConversation{ConversationID: conversationID}, true
	})
}

// Leave drops conversationID from the rooms and announces it when connected.
func (m *Manager) Leave(conversationID string) {
	m.subscribe(func() (wire.Event, bool) {
		for i, id := range m.rooms {
			if id == conversationID {
				m.rooms = append(m.rooms[:i], m.rooms[i+1:]...)
				return wire.LeaveConversation{ConversationID: conversationID}, true
			}
		}
		return nil, false
	})
}

// SubscribeNotifications joins the user's notification channel now and
// after every reconnect.
func (m *Manager) SubscribeNotifications() {
	m.subscribe(func() (wire.Event, bool) {
		m.notifications = true
		return wire.JoinNotifications{}, true
	})
}

// subscribe mutates subscription state under mu and writes the resulting
// announcement in the same write critical section.
func (m *Manager) subscribe(mutate func() (wire.Event, bool)) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	ev, announce := mutate()
	connected := m.state == StateConnected
	conn, gen, life := m.conn, m.gen, m.life
	m.mu.Unlock()

	if !announce || !connected {
		return
	}
	if err := m.write(life, conn, ev); err != nil {
		m.lost(gen, err)
	}
}

// Emit writes ev if connected and fails with ErrNotConnected otherwise.
func (m *Manager) Emit(ev wire.Event) error {
	return m.send(ev, false)
}

// EmitReliable writes ev if connected and otherwise queues it for the next
// connect. It fails only when the queue is full or ev is invalid.
func (m *Manager) EmitReliable(ev wire.Event) error {
	return m.send(ev, true)
}

func (m *Manager) send(ev wire.Event, reliable bool) error {
	if ev == nil {
		return wire.ErrMalformedEvent
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.state != StateConnected {
		defer m.mu.Unlock()
		if !reliable {
			return ErrNotConnected
		}
		return m.enqueueLocked(ev)
	}
	conn, gen, life := m.conn, m.gen, m.life
	m.mu.Unlock()

	err := m.write(life, conn, ev)
	if err == nil {
		return nil
	}
	var queueErr error
	if reliable {
		m.mu.Lock()
		queueErr = m.enqueueLocked(ev)
		m.mu.Unlock()
	}
	m.lost(gen, err)
	if !reliable {
		return err
	}
	return queueErr
}

func (m *Manager) enqueueLocked(ev wire.Event) error {
	if len(m.queue) >= m.opts.QueueLimit {
		return ErrQueueFull
	}
	m.queue = append(m.queue, ev)
	return nil
}

func (m *Manager) write(life context.Context, conn Conn, ev wire.Event) error {
	frame, err := wire.Encode(ev)
	if err != nil {
		m.log.Error("realtime encode failed", "event", ev.EventName(), "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(life, m.opts.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, frame)
}

func (m *Manager) dial(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	credential := m.credential
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	conn, err := m.transport.Dial(dctx, credential)
	cancel()
	if err != nil {
		if IsAuthError(err) {
			m.fail(gen, err)
			return err
		}
		m.lost(gen, err)
		return nil
	}
	m.attach(gen, conn)
	return nil
}

// attach installs conn and replays subscriptions and the offline queue
// while holding writeMu, so nothing else reaches the socket first.
func (m *Manager) attach(gen uint64, conn Conn) {
	m.writeMu.Lock()

	m.mu.Lock()
	if m.gen != gen || (m.state != StateConnecting && m.state != StateReconnecting) {
		m.mu.Unlock()
		m.writeMu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.state = StateConnected
	m.attempt = 0
	replay := make([]wire.Event, 0, len(m.rooms)+1+len(m.queue))
	for _, id := range m.rooms {
		replay = append(replay, wire.JoinConversation{ConversationID: id})
	}
	if m.notifications {
		replay = append(replay, wire.JoinNotifications{})
	}
	subscriptions := len(replay)
	replay = append(replay, m.queue...)
	m.queue = nil
	life := m.life
	m.mu.Unlock()

	for i, ev := range replay {
		if err := m.write(life, conn, ev); err != nil {
			first := i
			if first < subscriptions {
				first = subscriptions
			}
			m.mu.Lock()
			m.queue = append(append([]wire.Event(nil), replay[first:]...), m.queue...)
			m.mu.Unlock()
			m.writeMu.Unlock()
			m.lost(gen, err)
			return
		}
	}
	m.writeMu.Unlock()

	m.log.Info("realtime connected", "rooms", subscriptions, "flushed", len(replay)-subscriptions)
	m.notify(StateChange{State: StateConnected})
	go m.readLoop(life, gen, conn)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			m.lost(gen, err)
			return
		}
		ev, err := wire.Decode(frame)
		if err != nil {
			m.log.Warn("realtime event rejected", "error", err)
			continue
		}
		if se, ok := ev.(wire.ServerError); ok && se.Code == wire.CodeUnauthorized {
			m.fail(gen, &AuthError{Reason: se.Message})
			return
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev wire.Event) {
	m.mu.Lock()
	handlers := append([]func(wire.Event){}, m.handlers[ev.EventName()]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// lost moves a live or dialing lineage into reconnecting and schedules the
// next dial. Stale generations are ignored.
func (m *Manager) lost(gen uint64, err error) {
	if IsAuthError(err) {
		m.fail(gen, err)
		return
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		err = &TransportError{Op: "connect", Err: err}
	}

	m.mu.Lock()
	if m.gen != gen || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	next := m.gen
	conn := m.conn
	m.conn = nil
	m.state = StateReconnecting
	delay := m.opts.Backoff.Delay(m.attempt)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	m.attempt++
	attempt := m.attempt
	m.retry.Stop()
	m.retry = m.opts.Clock.AfterFunc(delay, func() { m.redial(next) })
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.log.Warn("realtime connection lost", "error", err, "attempt", attempt, "retry_in", delay)
	m.notify(StateChange{State: StateReconnecting, Err: err, Attempt: attempt, Delay: delay})
}

func (m *Manager) redial(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	life := m.life
	m.mu.Unlock()
	_ = m.dial(life, gen)
}

// fail ends the lineage without retry.
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.retry.Stop()
	m.retry = nil
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.log.Error("realtime auth failed", "error", err)
	m.notify(StateChange{State: StateDisconnected, Err: err})
}

func (m *Manager) notify(change StateChange) {
	m.mu.Lock()
	listeners := append([]func(StateChange){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}
