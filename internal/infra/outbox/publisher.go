package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	appoutbox "pricewatch/internal/app/outbox"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Publisher wraps encoded domain events in a CloudEvents envelope and sends
// them to the broker. Without a producer events are only logged.
type Publisher struct {
	Producer    Producer
	TopicPrefix string
	Source      string
	Logger      *slog.Logger
}

var _ appoutbox.Outbox = (*Publisher)(nil)

func (p *Publisher) Add(ctx context.Context, rec appoutbox.EventRecord) error {
	topic := p.topicFor(rec.Name)
	if p.Producer == nil {
		p.logger().Debug("event recorded", "event", rec.Name, "aggregate", rec.Aggregate, "topic", topic)
		return nil
	}
	payload, headers, err := p.formatPayload(rec)
	if err != nil {
		return err
	}
	if err := p.Producer.Publish(ctx, topic, rec.Aggregate, payload, headers); err != nil {
		return err
	}
	return nil
}

func (p *Publisher) formatPayload(rec appoutbox.EventRecord) ([]byte, map[string]string, error) {
	data := map[string]any{}
	if err := json.Unmarshal(rec.Payload, &data); err != nil {
		return nil, nil, errors.Join(ErrMalformedPayload, err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              id,
		"type":            rec.Name + ".v1",
		"source":          p.source(),
		"subject":         rec.Aggregate,
		"time":            rec.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
	}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// topicFor maps "search.refresh.completed" to "<prefix>search.events.v1".
func (p *Publisher) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic := base + ".events.v1"
	if p.TopicPrefix != "" {
		topic = p.TopicPrefix + topic
	}
	return topic
}

func (p *Publisher) source() string {
	if p.Source != "" {
		return p.Source
	}
	return "app://pricewatch"
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

var ErrMalformedPayload = errors.New("outbox: event payload is not a json object")
