package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"rentme-realtime/internal/realtime/wire"
)

func TestMemoryDeliversToEverySubscriber(t *testing.T) {
	m := NewMemory()
	var a, b []Delivery
	if err := m.Subscribe(context.Background(), func(d Delivery) { a = append(a, d) }); err != nil {
		t.Fatal(err)
	}
	if err := m.Subscribe(context.Background(), func(d Delivery) { b = append(b, d) }); err != nil {
		t.Fatal(err)
	}
	d := Delivery{Room: "c1", Event: wire.EvtNewMessage, Frame: json.RawMessage(`{"event":"new-message"}`)}
	if err := m.Publish(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if len(a) != 1 || len(b) != 1 || a[0].Room != "c1" {
		t.Fatalf("deliveries: a=%v b=%v", a, b)
	}
}

func TestMemoryRejectsEmptyFrameAndClosed(t *testing.T) {
	m := NewMemory()
	if err := m.Publish(context.Background(), Delivery{Event: wire.EvtTyping}); err == nil {
		t.Fatal("expected error for empty frame")
	}
	_ = m.Close()
	err := m.Publish(context.Background(), Delivery{Event: wire.EvtTyping, Frame: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestDeliveryEncodingKeepsFrameVerbatim(t *testing.T) {
	frame := json.RawMessage(`{"event":"user-typing","data":{"conversationId":"c1","userId":"u1","isTyping":true}}`)
	payload, err := encode(Delivery{Origin: "gw-1", Room: "c1", ExcludeUser: "u1", Event: wire.EvtUserTyping, Frame: frame})
	if err != nil {
		t.Fatal(err)
	}
	got, err := decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Frame) != string(frame) || got.ExcludeUser != "u1" || got.Origin != "gw-1" {
		t.Fatalf("decoded %+v", got)
	}
}
