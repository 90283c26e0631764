package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "pricewatch/internal/app/outbox"
)

type capturedMessage struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type stubProducer struct {
	sent []capturedMessage
}

func (s *stubProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	s.sent = append(s.sent, capturedMessage{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestPublisherWrapsCloudEvent(t *testing.T) {
	producer := &stubProducer{}
	pub := &Publisher{Producer: producer, TopicPrefix: "dev."}
	at := time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

	err := pub.Add(context.Background(), appoutbox.EventRecord{
		ID:         "evt-1",
		Name:       "search.refresh.completed",
		Payload:    []byte(`{"search_id":"s-1","priced":23}`),
		OccurredAt: at,
		Aggregate:  "s-1",
		Headers:    map[string]string{"traceparent": "00-abc"},
	})
	require.NoError(t, err)
	require.Len(t, producer.sent, 1)

	msg := producer.sent[0]
	assert.Equal(t, "dev.search.events.v1", msg.topic)
	assert.Equal(t, "s-1", msg.key)
	assert.Equal(t, "application/cloudevents+json", msg.headers["content-type"])

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &envelope))
	assert.Equal(t, "1.0", envelope["specversion"])
	assert.Equal(t, "evt-1", envelope["id"])
	assert.Equal(t, "search.refresh.completed.v1", envelope["type"])
	assert.Equal(t, "app://pricewatch", envelope["source"])
	assert.Equal(t, "00-abc", envelope["traceparent"])
	assert.Equal(t, float64(23), envelope["data"].(map[string]any)["priced"])
}

func TestPublisherRejectsNonObjectPayload(t *testing.T) {
	pub := &Publisher{Producer: &stubProducer{}}
	err := pub.Add(context.Background(), appoutbox.EventRecord{Name: "search.created", Payload: []byte(`[1]`)})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPublisherWithoutProducerOnlyLogs(t *testing.T) {
	pub := &Publisher{}
	assert.NoError(t, pub.Add(context.Background(), appoutbox.EventRecord{Name: "search.deleted"}))
}
