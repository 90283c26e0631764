package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pricewatch/internal/domain/shared/events"
)

// EventRecord is an encoded domain event ready for publication.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox accepts encoded events for delivery.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

// EventSource is implemented by aggregates embedding events.EventRecorder.
type EventSource interface {
	DrainEvents() []events.DomainEvent
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}

// RecordDomainEvents encodes and hands every event to box. All events are
// attempted; the returned error joins individual failures.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	var errs []error
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := box.Add(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", rec.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Flush drains src and records its events.
func Flush(ctx context.Context, box Outbox, encoder EventEncoder, src EventSource) error {
	if src == nil {
		return nil
	}
	return RecordDomainEvents(ctx, box, encoder, src.DrainEvents())
}
