// Package outbox records domain events for asynchronous publication.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentme-realtime/internal/domain/shared/events"
)

// EventRecord is one event waiting in the outbox. Payload is the JSON
// encoding of the domain event.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	// Add stores record; adding an id twice is not an error.
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type headersKey struct{}

// WithHeaders attaches headers that Recorder copies onto every record
// made under ctx. Later calls override earlier keys.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	merged := make(map[string]string, len(headers))
	if prev, ok := ctx.Value(headersKey{}).(map[string]string); ok {
		maps.Copy(merged, prev)
	}
	maps.Copy(merged, headers)
	return context.WithValue(ctx, headersKey{}, merged)
}

func headersFrom(ctx context.Context) map[string]string {
	prev, _ := ctx.Value(headersKey{}).(map[string]string)
	return prev
}

// Recorder encodes domain events and adds them to an outbox. A nil
// Outbox makes Record a no-op so publication can be switched off.
type Recorder struct {
	Outbox Outbox
	Now    func() time.Time
	NewID  func() string
}

func (r Recorder) Record(ctx context.Context, evs ...events.DomainEvent) error {
	if r.Outbox == nil {
		return nil
	}
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		rec, err := r.encode(ctx, ev)
		if err != nil {
			return err
		}
		if err := r.Outbox.Add(ctx, rec); err != nil {
			return fmt.Errorf("outbox add %s: %w", rec.Name, err)
		}
	}
	return nil
}

func (r Recorder) encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	at := ev.OccurredAt()
	if at.IsZero() {
		at = r.now()
	}
	headers := map[string]string{"aggregate-type": aggregateType(ev.EventName())}
	maps.Copy(headers, headersFrom(ctx))
	return EventRecord{
		ID:         r.newID(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: at.UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// aggregateType is the event name prefix: "message.sent" -> "message".
func aggregateType(name string) string {
	if prefix, _, ok := strings.Cut(name, "."); ok {
		return prefix
	}
	return name
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Recorder) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
