package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentme-realtime/internal/auth"
	"rentme-realtime/internal/domain/chat"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/infra/storage/memory"
	"rentme-realtime/internal/realtime/fanout"
	"rentme-realtime/internal/realtime/wire"
)

type fakeMessaging struct {
	mu    sync.Mutex
	convs map[string]chat.Conversation
	msgs  map[string]chat.Message
}

func (f *fakeMessaging) GetConversation(_ context.Context, id, _ string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return chat.Conversation{}, status.Error(codes.NotFound, "conversation not found")
	}
	return conv, nil
}

func (f *fakeMessaging) SendMessage(_ context.Context, convID, senderID, content string, msgType chat.MessageType, clientID string) (chat.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok || !conv.HasParticipant(senderID) {
		return chat.Message{}, false, status.Error(codes.PermissionDenied, "not a participant")
	}
	for _, m := range f.msgs {
		if clientID != "" && m.ClientID == clientID && m.SenderID == senderID {
			return m, true, nil
		}
	}
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      time.Now().UTC(),
		ClientID:       clientID,
	}
	f.msgs[msg.ID] = msg
	return msg, false, nil
}

func (f *fakeMessaging) MarkMessageRead(_ context.Context, convID, messageID, readerID string) (chat.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok || msg.ConversationID != convID {
		return chat.Message{}, false, status.Error(codes.NotFound, "message not found")
	}
	if msg.SenderID == readerID {
		return chat.Message{}, false, status.Error(codes.PermissionDenied, chat.ErrNotRecipient.Error())
	}
	if msg.IsRead {
		return msg, false, nil
	}
	msg.IsRead = true
	f.msgs[messageID] = msg
	return msg, true, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notification.Notification) (notification.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return n, true, nil
}

func (r *recordingNotifier) all() []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Notification(nil), r.sent...)
}

type harness struct {
	url      string
	notifier *recordingNotifier
	outbox   *memory.Outbox
	hub      *Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	broker := fanout.NewMemory()
	hub := NewHub(broker, obs.Discard(), obs.NewMetrics())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("hub start: %v", err)
	}
	msgs := &fakeMessaging{
		convs: map[string]chat.Conversation{
			"c1": {ID: "c1", BookingID: "b1", OwnerID: "alice", RenterID: "bob"},
		},
		msgs: make(map[string]chat.Message),
	}
	h := &harness{notifier: &recordingNotifier{}, outbox: memory.NewOutbox(nil), hub: hub}
	router := &Router{
		Hub:       hub,
		Messaging: msgs,
		Notifier:  h.notifier,
		Outbox:    h.outbox,
		Logger:    obs.Discard(),
		Timeout:   2 * time.Second,
	}
	resolver := auth.StaticResolver{"ta": "alice", "tb": "bob", "te": "eve"}
	opts := DefaultOptions()
	opts.TypingRate = 1
	opts.TypingBurst = 1
	srv := NewServer(hub, router, resolver, opts, obs.Discard())

	engine := gin.New()
	engine.GET("/ws", srv.ServeWS)
	ts := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		_ = broker.Close()
	})
	h.url = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return h
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(h.url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", token, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, ev wire.Event) {
	t.Helper()
	frame, err := wire.Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads until an event named want arrives.
func expect(t *testing.T, ws *websocket.Conn, want wire.Name) wire.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		ev, err := wire.Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if ev.EventName() == want {
			return ev
		}
	}
}

func TestServeWSRejectsBadTokenBeforeUpgrade(t *testing.T) {
	h := newHarness(t)
	for _, header := range []string{"", "Bearer nope"} {
		hdr := http.Header{}
		if header != "" {
			hdr.Set("Authorization", header)
		}
		_, resp, err := websocket.DefaultDialer.Dial(h.url, hdr)
		if err == nil {
			t.Fatalf("dial with %q succeeded", header)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("dial with %q: response %v, want 401", header, resp)
		}
	}
}

func TestSendMessageReachesBothParticipants(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "ta")
	bob := h.dial(t, "tb")

	send(t, alice, wire.JoinConversation{ConversationID: "c1"})
	send(t, alice, wire.SendMessage{ConversationID: "c1", Content: "hello", MessageType: chat.MessageText, ClientID: "cid-1"})

	got := expect(t, alice, wire.EvtNewMessage).(wire.NewMessage)
	if got.ClientID != "cid-1" || got.Content != "hello" || got.SenderID != "alice" {
		t.Fatalf("echo = %+v", got.Message)
	}
	peer := expect(t, bob, wire.EvtNewMessage).(wire.NewMessage)
	if peer.ID != got.ID {
		t.Fatalf("bob got %s, alice got %s", peer.ID, got.ID)
	}

	sent := h.notifier.all()
	if len(sent) != 1 || sent[0].UserID != "bob" || sent[0].Type != notification.TypeMessage {
		t.Fatalf("notifications = %+v", sent)
	}
	if sent[0].Data["conversationId"] != "c1" || sent[0].Data["messageId"] != got.ID {
		t.Fatalf("notification data = %v", sent[0].Data)
	}
	if h.outbox.Pending() != 1 {
		t.Fatalf("outbox pending = %d, want 1", h.outbox.Pending())
	}
}

func TestDuplicateClientIDIsNotRecordedTwice(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "ta")

	send(t, alice, wire.JoinConversation{ConversationID: "c1"})
	for i := 0; i < 2; i++ {
		send(t, alice, wire.SendMessage{ConversationID: "c1", Content: "once", ClientID: "same"})
	}
	first := expect(t, alice, wire.EvtNewMessage).(wire.NewMessage)
	second := expect(t, alice, wire.EvtNewMessage).(wire.NewMessage)
	if first.ID != second.ID {
		t.Fatalf("duplicate send produced %s and %s", first.ID, second.ID)
	}
	if n := len(h.notifier.all()); n != 1 {
		t.Fatalf("notifications = %d, want 1", n)
	}
	if h.outbox.Pending() != 1 {
		t.Fatalf("outbox pending = %d, want 1", h.outbox.Pending())
	}
}

func TestJoinRejectsNonParticipant(t *testing.T) {
	h := newHarness(t)
	eve := h.dial(t, "te")

	send(t, eve, wire.JoinConversation{ConversationID: "c1"})
	got := expect(t, eve, wire.EvtError).(wire.ServerError)
	if got.Code != wire.CodeForbidden {
		t.Fatalf("code = %s, want %s", got.Code, wire.CodeForbidden)
	}

	send(t, eve, wire.SendMessage{ConversationID: "c1", Content: "hi", ClientID: "x"})
	got = expect(t, eve, wire.EvtError).(wire.ServerError)
	if got.Code != wire.CodeForbidden || got.ClientID != "x" {
		t.Fatalf("send error = %+v", got)
	}
}

func TestMarkReadBroadcastsToRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "ta")
	bob := h.dial(t, "tb")

	send(t, alice, wire.JoinConversation{ConversationID: "c1"})
	send(t, alice, wire.SendMessage{ConversationID: "c1", Content: "read me"})
	msg := expect(t, bob, wire.EvtNewMessage).(wire.NewMessage)

	send(t, bob, wire.MarkMessageRead{ConversationID: "c1", MessageID: msg.ID})
	read := expect(t, alice, wire.EvtMessageRead).(wire.MessageRead)
	if read.MessageID != msg.ID || read.ReadBy != "bob" {
		t.Fatalf("message-read = %+v", read)
	}

	send(t, alice, wire.MarkMessageRead{ConversationID: "c1", MessageID: msg.ID})
	if got := expect(t, alice, wire.EvtError).(wire.ServerError); got.Code != wire.CodeForbidden {
		t.Fatalf("sender mark-read code = %s", got.Code)
	}
}

func TestPresenceAndTyping(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "ta")
	send(t, alice, wire.JoinConversation{ConversationID: "c1"})
	send(t, alice, wire.SendMessage{ConversationID: "c1", Content: "sync"})
	expect(t, alice, wire.EvtNewMessage)

	bob := h.dial(t, "tb")
	send(t, bob, wire.JoinConversation{ConversationID: "c1"})
	if st := expect(t, bob, wire.EvtUserStatus).(wire.UserStatus); st.UserID != "alice" || st.Status != wire.StatusOnline {
		t.Fatalf("bob saw %+v", st)
	}
	if st := expect(t, alice, wire.EvtUserStatus).(wire.UserStatus); st.UserID != "bob" || st.Status != wire.StatusOnline {
		t.Fatalf("alice saw %+v", st)
	}

	send(t, bob, wire.Typing{ConversationID: "c1", IsTyping: true})
	typing := expect(t, alice, wire.EvtUserTyping).(wire.UserTyping)
	if typing.UserID != "bob" || !typing.IsTyping {
		t.Fatalf("typing = %+v", typing)
	}

	_ = bob.Close()
	if st := expect(t, alice, wire.EvtUserStatus).(wire.UserStatus); st.UserID != "bob" || st.Status != wire.StatusOffline {
		t.Fatalf("after close alice saw %+v", st)
	}
}

func TestMalformedFrameGetsBadRequest(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "ta")

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"new-message","data":{}}`)); err != nil {
		t.Fatal(err)
	}
	if got := expect(t, alice, wire.EvtError).(wire.ServerError); got.Code != wire.CodeBadRequest {
		t.Fatalf("code = %s", got.Code)
	}
	if err := alice.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if got := expect(t, alice, wire.EvtError).(wire.ServerError); got.Code != wire.CodeBadRequest {
		t.Fatalf("code = %s", got.Code)
	}
}

func TestNotificationsReachSubscribersOnly(t *testing.T) {
	h := newHarness(t)
	bob := h.dial(t, "tb")
	send(t, bob, wire.JoinNotifications{})
	// a round trip through the read pump orders the subscription first
	send(t, bob, wire.JoinConversation{ConversationID: "missing"})
	expect(t, bob, wire.EvtError)

	n := notification.Notification{ID: "n1", UserID: "bob", Type: notification.TypeBooking, Title: "Booking accepted", CreatedAt: time.Now().UTC()}
	if err := h.hub.DeliverNotification(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	got := expect(t, bob, wire.EvtNotification).(wire.Notification)
	if got.ID != "n1" || got.Title != "Booking accepted" {
		t.Fatalf("notification = %+v", got.Notification)
	}
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	c := newConn("c", "u", nil, Options{SendBuffer: 1, TypingRate: 1, TypingBurst: 1})
	if !c.enqueue([]byte("a")) {
		t.Fatal("first frame rejected")
	}
	if c.enqueue([]byte("b")) {
		t.Fatal("overflow accepted")
	}
	select {
	case <-c.done:
	default:
		t.Fatal("connection not shut down")
	}
	if !c.slow() {
		t.Fatal("close code not try-again-later")
	}
}
