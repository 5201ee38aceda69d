package wire

import (
	"errors"
	"strings"
	"testing"
	"time"

	"rentme-realtime/internal/domain/chat"
)

func TestEncodeDecodeNewMessageKeepsClientID(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	frame, err := Encode(NewMessage{Message: chat.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u2",
		Content:        "hi",
		Type:           chat.MessageText,
		CreatedAt:      created,
		ClientID:       "cid-1",
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(frame), `"event":"new-message"`) {
		t.Fatalf("frame = %s", frame)
	}
	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg, ok := ev.(NewMessage)
	if !ok {
		t.Fatalf("decoded %T", ev)
	}
	if msg.ClientID != "cid-1" || !msg.CreatedAt.Equal(created) || msg.Type != chat.MessageText {
		t.Fatalf("unexpected message %+v", msg.Message)
	}
}

func TestDecodeJoinNotificationsWithoutData(t *testing.T) {
	for _, frame := range []string{
		`{"event":"join-notifications"}`,
		`{"event":"join-notifications","data":null}`,
		`{"event":"join-notifications","data":{}}`,
	} {
		ev, err := Decode([]byte(frame))
		if err != nil {
			t.Fatalf("Decode(%s): %v", frame, err)
		}
		if _, ok := ev.(JoinNotifications); !ok {
			t.Fatalf("decoded %T", ev)
		}
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `nope`, ErrMalformedEvent},
		{"missing name", `{"data":{}}`, ErrMalformedEvent},
		{"unknown", `{"event":"poke","data":{}}`, ErrUnknownEvent},
		{"array data", `{"event":"typing","data":[1]}`, ErrMalformedEvent},
		{"missing conversation", `{"event":"join-conversation","data":{}}`, ErrMalformedEvent},
		{"empty content", `{"event":"send-message","data":{"conversationId":"c","content":"  "}}`, ErrMalformedEvent},
		{"bad type", `{"event":"send-message","data":{"conversationId":"c","content":"x","messageType":"video"}}`, ErrMalformedEvent},
		{"wrong field type", `{"event":"typing","data":{"conversationId":"c","isTyping":"yes"}}`, ErrMalformedEvent},
		{"message without stamp", `{"event":"new-message","data":{"id":"m","conversationId":"c","senderId":"u","content":"x"}}`, ErrMalformedEvent},
		{"read without reader", `{"event":"message-read","data":{"messageId":"m"}}`, ErrMalformedEvent},
		{"bad notification type", `{"event":"notification","data":{"id":"n","type":"spam"}}`, ErrMalformedEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Decode error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEncodeValidates(t *testing.T) {
	if _, err := Encode(Typing{}); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("Encode(Typing{}) = %v", err)
	}
	if _, err := Encode(nil); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("Encode(nil) = %v", err)
	}
}

func TestFromClient(t *testing.T) {
	for name := range registry {
		want := name == EvtJoinConversation || name == EvtLeaveConversation ||
			name == EvtSendMessage || name == EvtMarkMessageRead ||
			name == EvtTyping || name == EvtJoinNotifications
		if got := FromClient(name); got != want {
			t.Errorf("FromClient(%s) = %v, want %v", name, got, want)
		}
	}
}
