package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rentme-realtime/internal/clock"
	"rentme-realtime/internal/config"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/realtime/wire"
)

// UpdateKind says which part of the session state changed.
type UpdateKind string

const (
	UpdateConnection    UpdateKind = "connection"
	UpdateDirectory     UpdateKind = "directory"
	UpdateMessages      UpdateKind = "messages"
	UpdateTyping        UpdateKind = "typing"
	UpdateNotifications UpdateKind = "notifications"
	UpdatePresence      UpdateKind = "presence"
	UpdateSendFailed    UpdateKind = "send-failed"
	UpdateServerError   UpdateKind = "server-error"
)

// Update is a change notice. Consumers re-read the state they care about.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	MessageID      string
	UserID         string
	State          State
	Err            error
}

type Options struct {
	Config  config.Client
	Clock   clock.Clock
	Logger  *slog.Logger
	Alerter Alerter
	// NewID generates temp and client correlation ids.
	NewID func() string
}

// Session is the per-login realtime state. All state is owned by one
// event loop goroutine; public methods hand closures to it.
type Session struct {
	userID  string
	api     API
	manager *Manager
	clock   clock.Clock
	log     *slog.Logger
	cfg     config.Client
	alerter Alerter
	newID   func() string

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan func()
	updates   chan Update
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	directory     *Directory
	streams       map[string]*Stream
	typing        *TypingTracker
	notifications *Notifications
	presence      map[string]string
	sends         map[string]*pendingSend
	connectedOnce bool
}

type pendingSend struct {
	conversationID string
	event          wire.SendMessage
	timer          *clock.Timer
	// armed tells a fired timer apart from one replaced after it fired.
	armed uint64
}

// NewSession wires a session for userID. It does not connect.
func NewSession(userID string, transport Transport, api API, opts Options) *Session {
	cfg := withClientDefaults(opts.Config)
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	log := opts.Logger.With("user_id", userID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		userID:        userID,
		api:           api,
		clock:         opts.Clock,
		log:           log,
		cfg:           cfg,
		alerter:       opts.Alerter,
		newID:         opts.NewID,
		ctx:           ctx,
		cancel:        cancel,
		events:        make(chan func(), 1024),
		updates:       make(chan Update, 256),
		done:          make(chan struct{}),
		loopDone:      make(chan struct{}),
		directory:     newDirectory(userID, log),
		streams:       make(map[string]*Stream),
		notifications: newNotifications(),
		presence:      make(map[string]string),
		sends:         make(map[string]*pendingSend),
	}
	s.manager = NewManager(transport, ManagerOptions{
		Backoff: Backoff{
			Base:   cfg.ReconnectBase,
			Max:    cfg.ReconnectMax,
			Factor: cfg.ReconnectFactor,
			Jitter: cfg.ReconnectJitter,
		},
		QueueLimit:   cfg.QueueLimit,
		DialTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		Clock:        opts.Clock,
		Logger:       log,
	})
	s.typing = newTypingTracker(opts.Clock, typingOptions{
		TTL:      cfg.TypingTTL,
		Throttle: cfg.TypingThrottle,
		Silence:  cfg.TypingSilence,
		Sweep:    cfg.TypingSweep,
	}, s.post, s.emitTyping, func(conversationID string) {
		s.emit(Update{Kind: UpdateTyping, ConversationID: conversationID})
	})

	s.manager.OnStateChange(func(ch StateChange) {
		s.post(func() { s.onState(ch) })
	})
	s.manager.Handle(wire.EvtNewMessage, func(ev wire.Event) {
		m := ev.(wire.NewMessage).Message
		s.post(func() { s.onNewMessage(m) })
	})
	s.manager.Handle(wire.EvtMessageRead, func(ev wire.Event) {
		r := ev.(wire.MessageRead)
		s.post(func() { s.onMessageRead(r) })
	})
	s.manager.Handle(wire.EvtUserTyping, func(ev wire.Event) {
		t := ev.(wire.UserTyping)
		s.post(func() { s.onUserTyping(t) })
	})
	s.manager.Handle(wire.EvtUserStatus, func(ev wire.Event) {
		st := ev.(wire.UserStatus)
		s.post(func() { s.onUserStatus(st) })
	})
	s.manager.Handle(wire.EvtNotification, func(ev wire.Event) {
		n := ev.(wire.Notification).Notification
		s.post(func() { s.onNotification(n) })
	})
	s.manager.Handle(wire.EvtError, func(ev wire.Event) {
		e := ev.(wire.ServerError)
		s.post(func() { s.onServerError(e) })
	})

	go s.run()
	return s
}

func withClientDefaults(cfg config.Client) config.Client {
	def := config.DefaultClient()
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = def.HTTPTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = def.TypingTTL
	}
	if cfg.TypingSweep <= 0 {
		cfg.TypingSweep = def.TypingSweep
	}
	if cfg.TypingThrottle <= 0 {
		cfg.TypingThrottle = def.TypingThrottle
	}
	if cfg.TypingSilence <= 0 {
		cfg.TypingSilence = def.TypingSilence
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = def.ReconnectBase
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = def.ReconnectMax
	}
	if cfg.ReconnectFactor < 1 {
		cfg.ReconnectFactor = def.ReconnectFactor
	}
	if cfg.ReconnectJitter < 0 || cfg.ReconnectJitter >= 1 {
		cfg.ReconnectJitter = def.ReconnectJitter
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = def.QueueLimit
	}
	return cfg
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		}
	}
}

// post queues fn for the loop without blocking the caller.
func (s *Session) post(fn func()) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- fn:
	default:
		go func() {
			select {
			case s.events <- fn:
			case <-s.done:
			}
		}()
	}
}

// do runs fn on the loop and waits for it. It must not be called from
// the loop itself.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		s.log.Debug("update dropped, consumer is slow", "kind", u.Kind)
	}
}

// Updates delivers change notices. Notices are dropped rather than block
// the session when the consumer falls behind. The channel is closed by Close.
func (s *Session) Updates() <-chan Update { return s.updates }

func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State { return s.manager.State() }

// Connect subscribes the notification channel and dials. Only an auth
// failure is returned; other failures are retried in the background.
func (s *Session) Connect(ctx context.Context, credential string) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.manager.SubscribeNotifications()
	return s.manager.Connect(ctx, credential)
}

// Close disconnects and stops the loop. Pending sends are abandoned.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.manager.Disconnect()
		_ = s.do(func() {
			s.typing.Stop()
			for _, p := range s.sends {
				p.timer.Stop()
			}
		})
		close(s.done)
		s.cancel()
		<-s.loopDone
		close(s.updates)
	})
}

func (s *Session) onState(ch StateChange) {
	s.emit(Update{Kind: UpdateConnection, State: ch.State, Err: ch.Err})
	if ch.State != StateConnected {
		return
	}
	if s.connectedOnce {
		for _, st := range s.streams {
			s.fetchHistory(st)
		}
		if s.directory.Loaded() {
			s.reloadDirectory()
		}
	}
	s.connectedOnce = true
	for tempID, p := range s.sends {
		if p.timer != nil {
			s.armSendTimer(tempID, p)
		}
	}
}

// LoadDirectory fetches the conversation list and replaces the cache.
func (s *Session) LoadDirectory(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	return s.do(func() {
		s.applyDirectory(list)
	})
}

func (s *Session) reloadDirectory() {
	if s.directory.BeginRefetch() {
		s.fetchDirectory()
	}
}

// fetchDirectory assumes BeginRefetch already succeeded.
func (s *Session) fetchDirectory() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HTTPTimeout)
		defer cancel()
		list, err := s.api.ListConversations(ctx)
		s.post(func() {
			if err != nil {
				s.directory.AbortRefetch()
				s.log.Warn("conversation reload failed", "error", err)
				s.emit(Update{Kind: UpdateDirectory, Err: err})
				return
			}
			s.applyDirectory(list)
		})
	}()
}

func (s *Session) applyDirectory(list []chat.Conversation) {
	dropped := s.directory.Seed(list)
	if len(dropped) > 0 {
		s.log.Warn("messages for unknown conversations dropped", "count", len(dropped))
	}
	s.emit(Update{Kind: UpdateDirectory})
}

// Conversations returns the directory in display order.
func (s *Session) Conversations() []chat.Conversation {
	var out []chat.Conversation
	_ = s.do(func() { out = s.directory.List() })
	return out
}

// Conversation returns one cached conversation.
func (s *Session) Conversation(conversationID string) (chat.Conversation, bool) {
	var (
		out chat.Conversation
		ok  bool
	)
	_ = s.do(func() { out, ok = s.directory.Get(conversationID) })
	return out, ok
}

// OpenConversation joins the room and fetches history concurrently. The
// history lands later as an UpdateMessages.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return chat.ErrConversationRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.do(func() {
		st := s.streams[conversationID]
		if st == nil {
			st = newStream(conversationID, s.userID)
			s.streams[conversationID] = st
		}
		s.manager.Join(conversationID)
		s.fetchHistory(st)
	})
}

// CloseConversation leaves the room and releases the stream.
func (s *Session) CloseConversation(conversationID string) error {
	return s.do(func() {
		st := s.streams[conversationID]
		if st == nil {
			return
		}
		delete(s.streams, conversationID)
		s.manager.Leave(conversationID)
		s.typing.Forget(conversationID)
		for tempID, p := range s.sends {
			if p.conversationID == conversationID {
				p.timer.Stop()
				delete(s.sends, tempID)
			}
		}
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID})
	})
}

func (s *Session) fetchHistory(st *Stream) {
	st.epoch++
	epoch := st.epoch
	conversationID := st.conversationID
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HTTPTimeout)
		defer cancel()
		msgs, err := s.api.ListMessages(ctx, conversationID)
		s.post(func() { s.applyHistory(conversationID, epoch, msgs, err) })
	}()
}

func (s *Session) applyHistory(conversationID string, epoch uint64, msgs []chat.Message, err error) {
	st := s.streams[conversationID]
	if st == nil || st.epoch != epoch {
		s.log.Debug("stale history discarded", "conversation_id", conversationID, "epoch", epoch)
		return
	}
	if err != nil {
		s.log.Warn("history fetch failed", "conversation_id", conversationID, "error", err)
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID, Err: err})
		return
	}
	changed := !st.loaded
	st.loaded = true
	for _, m := range msgs {
		if m.SenderID == s.userID && m.ClientID != "" {
			if tempID, ok := st.Reconcile(m, false); ok {
				s.finishSend(tempID)
				changed = true
				continue
			}
		}
		added, err := st.Append(m)
		if err != nil {
			s.log.Warn("history merge conflict", "conversation_id", conversationID, "message_id", m.ID, "error", err)
		}
		changed = changed || added
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		if _, known := s.directory.Get(conversationID); known &&
			s.directory.Upsert(chat.Conversation{ID: conversationID, LastMessage: &last, UnreadCount: -1}) {
			s.emit(Update{Kind: UpdateDirectory, ConversationID: conversationID})
		}
	}
	if changed {
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID})
	}
}

// Messages returns the stream of an open conversation.
func (s *Session) Messages(conversationID string) []chat.Message {
	var out []chat.Message
	_ = s.do(func() {
		if st := s.streams[conversationID]; st != nil {
			out = st.Messages()
		}
	})
	return out
}

// Send appends a pending placeholder and emits send-message. The returned
// temp id identifies the placeholder until the echo replaces it.
func (s *Session) Send(ctx context.Context, conversationID, content string, messageType chat.MessageType) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", chat.ErrContentRequired
	}
	mt, err := chat.ParseMessageType(string(messageType))
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var (
		tempID  string
		sendErr error
	)
	err = s.do(func() {
		st := s.streams[conversationID]
		if st == nil {
			sendErr = ErrConversationNotOpen
			return
		}
		id := chat.LocalIDPrefix + s.newID()
		clientID := s.newID()
		st.AddPending(chat.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       s.userID,
			Content:        content,
			Type:           mt,
			CreatedAt:      s.clock.Now(),
			ClientID:       clientID,
		})
		ev := wire.SendMessage{ConversationID: conversationID, Content: content, MessageType: mt, ClientID: clientID}
		if err := s.manager.EmitReliable(ev); err != nil {
			st.Discard(id)
			sendErr = err
			return
		}
		p := &pendingSend{conversationID: conversationID, event: ev}
		s.sends[id] = p
		s.armSendTimer(id, p)
		s.typing.NotifyStopped(conversationID)
		tempID = id
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID, MessageID: id})
	})
	if err != nil {
		return "", err
	}
	return tempID, sendErr
}

func (s *Session) armSendTimer(tempID string, p *pendingSend) {
	p.timer.Stop()
	p.armed++
	armed := p.armed
	p.timer = s.clock.AfterFunc(s.cfg.SendTimeout, func() {
		s.post(func() { s.sendTimedOut(tempID, p, armed) })
	})
}

func (s *Session) sendTimedOut(tempID string, p *pendingSend, armed uint64) {
	if s.sends[tempID] != p || p.timer == nil || p.armed != armed {
		return
	}
	st := s.streams[p.conversationID]
	if st == nil {
		delete(s.sends, tempID)
		return
	}
	if s.manager.State() != StateConnected {
		s.armSendTimer(tempID, p)
		return
	}
	p.timer = nil
	st.SetStatus(tempID, chat.StatusFailed)
	err := &SendTimeoutError{ConversationID: p.conversationID, TempID: tempID, After: s.cfg.SendTimeout}
	s.log.Warn("message not confirmed", "conversation_id", p.conversationID, "temp_id", tempID)
	s.emit(Update{Kind: UpdateSendFailed, ConversationID: p.conversationID, MessageID: tempID, Err: err})
}

func (s *Session) finishSend(tempID string) {
	if p, ok := s.sends[tempID]; ok {
		p.timer.Stop()
		delete(s.sends, tempID)
	}
}

// Retry re-emits a failed placeholder with its original correlation id.
func (s *Session) Retry(conversationID, tempID string) error {
	var retryErr error
	err := s.do(func() {
		st := s.streams[conversationID]
		p := s.sends[tempID]
		if st == nil || p == nil {
			retryErr = ErrUnknownPlaceholder
			return
		}
		m, ok := st.Get(tempID)
		if !ok {
			retryErr = ErrUnknownPlaceholder
			return
		}
		if m.Status != chat.StatusFailed {
			retryErr = ErrNotFailed
			return
		}
		if err := s.manager.EmitReliable(p.event); err != nil {
			retryErr = err
			return
		}
		st.SetStatus(tempID, chat.StatusPending)
		s.armSendTimer(tempID, p)
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID, MessageID: tempID})
	})
	if err != nil {
		return err
	}
	return retryErr
}

// Discard drops a placeholder.
func (s *Session) Discard(conversationID, tempID string) error {
	var discardErr error
	err := s.do(func() {
		st := s.streams[conversationID]
		if st == nil {
			discardErr = ErrUnknownPlaceholder
			return
		}
		if _, ok := st.Discard(tempID); !ok {
			discardErr = ErrUnknownPlaceholder
			return
		}
		s.finishSend(tempID)
		s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID, MessageID: tempID})
	})
	if err != nil {
		return err
	}
	return discardErr
}

func (s *Session) onNewMessage(m chat.Message) {
	if s.typing.Clear(m.ConversationID, m.SenderID) {
		s.emit(Update{Kind: UpdateTyping, ConversationID: m.ConversationID})
	}
	if st := s.streams[m.ConversationID]; st != nil {
		changed := false
		if m.SenderID == s.userID {
			if tempID, ok := st.Reconcile(m, true); ok {
				s.finishSend(tempID)
				changed = true
			}
		}
		if !changed {
			added, err := st.Append(m)
			if err != nil {
				s.log.Warn("message merge conflict", "conversation_id", m.ConversationID, "message_id", m.ID, "error", err)
			}
			changed = added
		}
		if changed {
			s.emit(Update{Kind: UpdateMessages, ConversationID: m.ConversationID, MessageID: m.ID})
		}
	}
	changed, _, refetch := s.directory.ApplyMessage(m)
	if refetch {
		s.fetchDirectory()
	}
	if changed {
		s.emit(Update{Kind: UpdateDirectory, ConversationID: m.ConversationID})
	}
}

// MarkRead flips a peer message to read, announces it and recomputes the
// conversation's unread count. Own or unknown messages are ignored.
func (s *Session) MarkRead(ctx context.Context, messageID, conversationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var markErr error
	err := s.do(func() {
		st := s.streams[conversationID]
		if st == nil {
			return
		}
		m, ok := st.Get(messageID)
		if !ok || m.SenderID == s.userID || m.IsLocal() {
			return
		}
		if st.MarkRead(messageID) {
			s.emit(Update{Kind: UpdateMessages, ConversationID: conversationID, MessageID: messageID})
			if err := s.manager.EmitReliable(wire.MarkMessageRead{MessageID: messageID, ConversationID: conversationID}); err != nil {
				s.log.Warn("read receipt not sent", "message_id", messageID, "error", err)
				markErr = err
			}
		}
		if s.directory.SetUnread(conversationID, st.UnreadFromPeers()) {
			s.emit(Update{Kind: UpdateDirectory, ConversationID: conversationID})
		}
	})
	if err != nil {
		return err
	}
	return markErr
}

func (s *Session) onMessageRead(r wire.MessageRead) {
	streams := make([]*Stream, 0, 1)
	if r.ConversationID != "" {
		if st := s.streams[r.ConversationID]; st != nil {
			streams = append(streams, st)
		}
	} else {
		for _, st := range s.streams {
			streams = append(streams, st)
		}
	}
	for _, st := range streams {
		m, ok := st.Get(r.MessageID)
		if !ok {
			continue
		}
		switch {
		case r.ReadBy == s.userID && m.SenderID != s.userID:
			if st.MarkRead(m.ID) {
				s.emit(Update{Kind: UpdateMessages, ConversationID: st.conversationID, MessageID: m.ID})
			}
			if s.directory.SetUnread(st.conversationID, st.UnreadFromPeers()) {
				s.emit(Update{Kind: UpdateDirectory, ConversationID: st.conversationID})
			}
		case r.ReadBy != s.userID && m.SenderID == s.userID:
			if st.MarkRead(m.ID) {
				s.emit(Update{Kind: UpdateMessages, ConversationID: st.conversationID, MessageID: m.ID})
			}
		}
		return
	}
}

// NotifyTyping reports local keystrokes in conversationID.
func (s *Session) NotifyTyping(conversationID string) error {
	return s.do(func() { s.typing.NotifyTyping(conversationID) })
}

// NotifyStopped reports that the user stopped typing.
func (s *Session) NotifyStopped(conversationID string) error {
	return s.do(func() { s.typing.NotifyStopped(conversationID) })
}

// Typists returns the peers currently typing in conversationID.
func (s *Session) Typists(conversationID string) []string {
	var out []string
	_ = s.do(func() { out = s.typing.Typists(conversationID) })
	return out
}

func (s *Session) emitTyping(conversationID string, typing bool) {
	err := s.manager.Emit(wire.Typing{ConversationID: conversationID, IsTyping: typing})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		s.log.Debug("typing not sent", "conversation_id", conversationID, "error", err)
	}
}

func (s *Session) onUserTyping(t wire.UserTyping) {
	if t.UserID == s.userID {
		return
	}
	if s.typing.Observe(t.ConversationID, t.UserID, t.IsTyping) {
		s.emit(Update{Kind: UpdateTyping, ConversationID: t.ConversationID, UserID: t.UserID})
	}
}

func (s *Session) onUserStatus(st wire.UserStatus) {
	if s.presence[st.UserID] == st.Status {
		return
	}
	s.presence[st.UserID] = st.Status
	s.log.Info("presence changed", "peer_id", st.UserID, "status", st.Status)
	s.emit(Update{Kind: UpdatePresence, UserID: st.UserID})
}

// Presence returns the last status seen for userID, or "".
func (s *Session) Presence(userID string) string {
	var out string
	_ = s.do(func() { out = s.presence[userID] })
	return out
}

func (s *Session) onNotification(n notification.Notification) {
	if !s.notifications.Add(n) {
		return
	}
	s.emit(Update{Kind: UpdateNotifications, MessageID: n.ID})
	if s.alerter == nil {
		return
	}
	alerter := s.alerter
	log := s.log
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("alerter panicked", "notification_id", n.ID, "panic", r)
			}
		}()
		if err := alerter.Alert(n); err != nil {
			log.Warn("alert failed", "notification_id", n.ID, "error", err)
		}
	}()
}

func (s *Session) onServerError(e wire.ServerError) {
	s.log.Warn("server rejected event", "code", e.Code, "message", e.Message, "client_id", e.ClientID)
	err := fmt.Errorf("server error %s: %s", e.Code, e.Message)
	if e.ClientID != "" {
		for tempID, p := range s.sends {
			if p.event.ClientID != e.ClientID {
				continue
			}
			if st := s.streams[p.conversationID]; st != nil && st.SetStatus(tempID, chat.StatusFailed) {
				p.timer.Stop()
				p.timer = nil
				s.emit(Update{Kind: UpdateSendFailed, ConversationID: p.conversationID, MessageID: tempID, Err: err})
			}
			break
		}
	}
	s.emit(Update{Kind: UpdateServerError, Err: err})
}

// LoadNotifications fetches the notification list and merges it.
func (s *Session) LoadNotifications(ctx context.Context) error {
	list, err := s.api.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	return s.do(func() {
		if s.notifications.Seed(list) {
			s.emit(Update{Kind: UpdateNotifications})
		}
	})
}

// Notifications returns the list newest first and the unread count.
func (s *Session) Notifications() ([]notification.Notification, int) {
	var (
		list   []notification.Notification
		unread int
	)
	_ = s.do(func() {
		list = s.notifications.List()
		unread = s.notifications.Unread()
	})
	return list, unread
}

// MarkNotificationRead flips id locally and mirrors it over REST.
func (s *Session) MarkNotificationRead(ctx context.Context, id string) error {
	var changed bool
	if err := s.do(func() {
		changed = s.notifications.MarkRead(id)
		if changed {
			s.emit(Update{Kind: UpdateNotifications, MessageID: id})
		}
	}); err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.api.MarkNotificationRead(ctx, id)
}

// MarkAllNotificationsRead flips every notification and mirrors it.
func (s *Session) MarkAllNotificationsRead(ctx context.Context) error {
	if err := s.do(func() {
		if s.notifications.MarkAllRead() > 0 {
			s.emit(Update{Kind: UpdateNotifications})
		}
	}); err != nil {
		return err
	}
	return s.api.MarkAllNotificationsRead(ctx)
}
