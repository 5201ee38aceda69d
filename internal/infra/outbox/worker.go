package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentme-realtime/internal/clock"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker drains a Queue into a Producer as CloudEvents. Event
// "message.sent" goes to "<prefix>message.events.v1" unless Topics maps
// the event's prefix elsewhere.
type Worker struct {
	Queue       Queue
	Producer    Producer
	Clock       clock.Clock
	Logger      *slog.Logger
	Interval    time.Duration
	TopicPrefix string
	// Topics overrides the topic per event prefix, e.g. "message" -> "chat.events.v1".
	Topics  map[string]string
	Source  string
	ID      string
	Backoff []time.Duration
	// Batch bounds the records published per tick.
	Batch int
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	id := w.workerID()
	ticker := w.clock().NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx, id); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if w.Logger != nil {
					w.Logger.Error("outbox drain failed", "error", err)
				}
			}
		}
	}
}

// Drain handles due records until none is due or the batch is exhausted.
// It returns how many records were attempted; failures are rescheduled.
func (w *Worker) Drain(ctx context.Context, workerID string) (int, error) {
	sent := 0
	for i := 0; i < w.batch(); i++ {
		ok, err := w.processOnce(ctx, workerID)
		if err != nil {
			return sent, err
		}
		if !ok {
			return sent, nil
		}
		sent++
	}
	return sent, nil
}

// processOnce reports false when nothing was due.
func (w *Worker) processOnce(ctx context.Context, workerID string) (bool, error) {
	doc, err := w.Queue.Claim(ctx, workerID)
	if err != nil || doc == nil {
		return false, err
	}
	topic := w.topicFor(doc.Name)
	payload, headers, err := w.formatPayload(doc)
	if err != nil {
		return true, w.fail(ctx, doc, err)
	}
	if err := w.Producer.Publish(ctx, topic, doc.Aggregate, payload, headers); err != nil {
		return true, w.fail(ctx, doc, err)
	}
	if w.Logger != nil {
		w.Logger.Debug("outbox event published", "event_id", doc.ID, "name", doc.Name, "topic", topic)
	}
	return true, w.Queue.MarkSent(ctx, doc.ID)
}

func (w *Worker) fail(ctx context.Context, doc *EventDocument, cause error) error {
	if w.Logger != nil {
		w.Logger.Warn("outbox publish failed", "event_id", doc.ID, "name", doc.Name, "attempts", doc.Attempts+1, "error", cause)
	}
	return w.Queue.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), cause.Error())
}

type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
	TraceParent     string          `json:"traceparent,omitempty"`
}

func (w *Worker) formatPayload(doc *EventDocument) ([]byte, map[string]string, error) {
	if !json.Valid(doc.Payload) {
		return nil, nil, fmt.Errorf("event %s: payload is not json", doc.ID)
	}
	evt := cloudEvent{
		SpecVersion:     "1.0",
		ID:              doc.ID,
		Type:            doc.Name + ".v1",
		Source:          w.source(),
		Subject:         doc.Aggregate,
		Time:            doc.OccurredAt.UTC(),
		DataContentType: "application/json",
		Data:            doc.Payload,
		TraceParent:     doc.Headers["traceparent"],
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	return payload, doc.Headers, nil
}

func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic, ok := w.Topics[base]
	if !ok {
		topic = base + ".events.v1"
	}
	return w.TopicPrefix + topic
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) clock() clock.Clock {
	if w.Clock != nil {
		return w.Clock
	}
	return clock.Real()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batch() int {
	if w.Batch <= 0 {
		return 100
	}
	return w.Batch
}

func (w *Worker) nextRetry(attempts int) time.Time {
	now := w.clock().Now()
	if attempts < len(w.Backoff) {
		return now.Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return now.Add(w.Backoff[len(w.Backoff)-1])
	}
	return now.Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://rentme-realtime"
}
