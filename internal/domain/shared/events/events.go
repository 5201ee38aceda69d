package events

import "time"

// DomainEvent is recorded by the application layer and published through
// the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}
