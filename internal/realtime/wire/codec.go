package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedEvent = errors.New("wire: malformed event")
	ErrUnknownEvent   = errors.New("wire: unknown event")
)

// Envelope is the frame layout shared by both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var registry = map[Name]func() Event{
	EvtJoinConversation:  func() Event { return &JoinConversation{} },
	EvtLeaveConversation: func() Event { return &LeaveConversation{} },
	EvtSendMessage:       func() Event { return &SendMessage{} },
	EvtNewMessage:        func() Event { return &NewMessage{} },
	EvtMarkMessageRead:   func() Event { return &MarkMessageRead{} },
	EvtMessageRead:       func() Event { return &MessageRead{} },
	EvtTyping:            func() Event { return &Typing{} },
	EvtUserTyping:        func() Event { return &UserTyping{} },
	EvtUserStatus:        func() Event { return &UserStatus{} },
	EvtJoinNotifications: func() Event { return &JoinNotifications{} },
	EvtNotification:      func() Event { return &Notification{} },
	EvtError:             func() Event { return &ServerError{} },
}

// Encode validates ev and wraps it in an envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}

// Decode parses a frame into its concrete event. The returned value is a
// struct, not a pointer, so callers can type switch on wire.NewMessage etc.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	factory, ok := registry[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	ptr := factory()
	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if data[0] != '{' {
			return nil, fmt.Errorf("%w: %s data must be an object", ErrMalformedEvent, env.Event)
		}
		if err := json.Unmarshal(data, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
		}
	}
	ev := deref(ptr)
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", env.Event, err)
	}
	return ev, nil
}

func deref(ptr Event) Event {
	switch v := ptr.(type) {
	case *JoinConversation:
		return *v
	case *LeaveConversation:
		return *v
	case *SendMessage:
		return *v
	case *NewMessage:
		return *v
	case *MarkMessageRead:
		return *v
	case *MessageRead:
		return *v
	case *Typing:
		return *v
	case *UserTyping:
		return *v
	case *UserStatus:
		return *v
	case *JoinNotifications:
		return *v
	case *Notification:
		return *v
	case *ServerError:
		return *v
	}
	return ptr
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedEvent}, args...)...)
}
