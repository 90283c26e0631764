package events

import (
	"slices"
	"time"
)

// DomainEvent is a fact recorded by an aggregate and published once the
// change behind it is stored.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder queues events on an aggregate. The zero value is ready to use.
type EventRecorder struct {
	pending []DomainEvent
}

// Record queues evs in order, skipping nils.
func (r *EventRecorder) Record(evs ...DomainEvent) {
	for _, ev := range evs {
		if ev != nil {
			r.pending = append(r.pending, ev)
		}
	}
}

// PendingEvents returns a copy of the queue.
func (r *EventRecorder) PendingEvents() []DomainEvent {
	return slices.Clone(r.pending)
}

// DrainEvents hands the queue to the caller and empties it.
func (r *EventRecorder) DrainEvents() []DomainEvent {
	out := r.pending
	r.pending = nil
	return out
}
