package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	appoutbox "rentme-realtime/internal/app/outbox"
	"rentme-realtime/internal/clock"
	infraoutbox "rentme-realtime/internal/infra/outbox"
)

// Outbox keeps event records in memory until a worker publishes them.
type Outbox struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]*infraoutbox.EventDocument
	order   []string
}

func NewOutbox(clk clock.Clock) *Outbox {
	if clk == nil {
		clk = clock.Real()
	}
	return &Outbox{clock: clk, records: make(map[string]*infraoutbox.EventDocument)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.records[record.ID]; ok {
		return nil
	}
	o.records[record.ID] = &infraoutbox.EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     append([]byte(nil), record.Payload...),
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       "NEW",
		NextAttempt: o.clock.Now(),
	}
	o.order = append(o.order, record.ID)
	return nil
}

// Flush drops records that were already sent.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.order[:0]
	for _, id := range o.order {
		if o.records[id].State == "SENT" {
			delete(o.records, id)
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock.Now()
	due := make([]*infraoutbox.EventDocument, 0)
	for _, id := range o.order {
		doc := o.records[id]
		if (doc.State == "NEW" || doc.State == "FAILED") && !doc.NextAttempt.After(now) {
			due = append(due, doc)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttempt.Before(due[j].NextAttempt) })
	doc := due[0]
	doc.State = "CLAIMED"
	doc.ClaimedBy = workerID
	doc.ClaimedAt = now
	out := *doc
	return &out, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc, ok := o.records[id]; ok {
		doc.State = "SENT"
		doc.SentAt = o.clock.Now()
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc, ok := o.records[id]; ok {
		doc.State = "FAILED"
		doc.NextAttempt = next
		doc.LastError = errMsg
		doc.Attempts++
	}
	return nil
}

// Pending counts records not yet sent.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, doc := range o.records {
		if doc.State != "SENT" {
			n++
		}
	}
	return n
}

var (
	_ appoutbox.Outbox  = (*Outbox)(nil)
	_ infraoutbox.Queue = (*Outbox)(nil)
)
