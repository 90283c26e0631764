package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/searches"
	"pricewatch/internal/infra/inbox"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []searches.SearchID
	err   error
	// once, when set, is returned by the next call only.
	once error
}

func (f *fakeRefresher) Trigger(_ context.Context, id searches.SearchID) (*refresh.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.once != nil {
		err := f.once
		f.once = nil
		return nil, err
	}
	return nil, f.err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func message(value string, offset int64, headers ...*sarama.RecordHeader) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "pw.search.commands.v1",
		Partition: 0,
		Offset:    offset,
		Value:     []byte(value),
		Headers:   headers,
	}
}

func TestRefreshCommandTriggersRefresh(t *testing.T) {
	r := &fakeRefresher{}
	h := RefreshCommandHandler{Refresher: r, Inbox: inbox.NewMemoryStore(0), Logger: quietLogger()}

	require.NoError(t, h.Handle(context.Background(), message(`{"search_id":"s-1","action":"refresh"}`, 1)))
	assert.Equal(t, []searches.SearchID{"s-1"}, r.calls)
}

func TestRefreshCommandDedupesRedelivery(t *testing.T) {
	r := &fakeRefresher{}
	h := RefreshCommandHandler{Refresher: r, Inbox: inbox.NewMemoryStore(0), Logger: quietLogger()}
	header := &sarama.RecordHeader{Key: []byte("ce_id"), Value: []byte("evt-9")}

	require.NoError(t, h.Handle(context.Background(), message(`{"search_id":"s-1"}`, 1, header)))
	require.NoError(t, h.Handle(context.Background(), message(`{"search_id":"s-1"}`, 2, header)))
	assert.Len(t, r.calls, 1)
}

func TestRefreshCommandRetriedAfterTransientFailure(t *testing.T) {
	outage := errors.New("mongo: connection reset")
	r := &fakeRefresher{once: outage}
	box := inbox.NewMemoryStore(0)
	h := RefreshCommandHandler{Refresher: r, Inbox: box, Logger: quietLogger()}
	msg := message(`{"id":"m-1","search_id":"s-1","action":"refresh"}`, 1)

	assert.ErrorIs(t, h.Handle(context.Background(), msg), outage)
	seen, err := box.Seen(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, seen, "a failed command must stay redeliverable")

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []searches.SearchID{"s-1", "s-1"}, r.calls)

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, r.calls, 2)
}

func TestRefreshCommandShuttingDownIsRetried(t *testing.T) {
	r := &fakeRefresher{once: refresh.ErrShuttingDown}
	h := RefreshCommandHandler{Refresher: r, Inbox: inbox.NewMemoryStore(0), Logger: quietLogger()}
	msg := message(`{"search_id":"s-1"}`, 9)

	assert.ErrorIs(t, h.Handle(context.Background(), msg), refresh.ErrShuttingDown)
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, r.calls, 2)
}

func TestRefreshCommandMarksSkippedCommands(t *testing.T) {
	box := inbox.NewMemoryStore(0)
	h := RefreshCommandHandler{Refresher: &fakeRefresher{err: searches.ErrNotFound}, Inbox: box, Logger: quietLogger()}

	require.NoError(t, h.Handle(context.Background(), message(`{"id":"m-2","search_id":"gone"}`, 3)))
	seen, err := box.Seen(context.Background(), "m-2")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRefreshCommandAcknowledgesExpectedFailures(t *testing.T) {
	for _, cause := range []error{searches.ErrNotFound, refresh.ErrInProgress} {
		r := &fakeRefresher{err: cause}
		h := RefreshCommandHandler{Refresher: r, Logger: quietLogger()}
		assert.NoError(t, h.Handle(context.Background(), message(`{"search_id":"s-1","action":"refresh"}`, 1)))
	}
}

func TestRefreshCommandReturnsOtherErrors(t *testing.T) {
	boom := errors.New("store down")
	h := RefreshCommandHandler{Refresher: &fakeRefresher{err: boom}, Logger: quietLogger()}
	assert.ErrorIs(t, h.Handle(context.Background(), message(`{"search_id":"s-1"}`, 1)), boom)
}

func TestRefreshCommandDropsGarbage(t *testing.T) {
	r := &fakeRefresher{}
	h := RefreshCommandHandler{Refresher: r, Logger: quietLogger()}

	assert.NoError(t, h.Handle(context.Background(), message(`not json`, 1)))
	assert.NoError(t, h.Handle(context.Background(), message(`{"search_id":"s-1","action":"delete"}`, 2)))
	assert.NoError(t, h.Handle(context.Background(), message(`{"action":"refresh"}`, 3)))
	assert.Empty(t, r.calls)
}

func TestRefreshCommandFallsBackToKey(t *testing.T) {
	r := &fakeRefresher{}
	h := RefreshCommandHandler{Refresher: r, Logger: quietLogger()}
	msg := message(`{"action":"refresh"}`, 4)
	msg.Key = []byte("s-7")

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []searches.SearchID{"s-7"}, r.calls)
}

func TestMessageIDPreference(t *testing.T) {
	assert.Equal(t, "cmd-1", messageID(message("", 5), refreshCommand{ID: "cmd-1"}))
	assert.Equal(t, "evt-2", messageID(message("", 5, &sarama.RecordHeader{Key: []byte("ce_id"), Value: []byte("evt-2")}), refreshCommand{}))
	assert.Equal(t, "pw.search.commands.v1/0/5", messageID(message("", 5), refreshCommand{}))
}

func TestProducerPublishesKeyedMessage(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "s-1" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "pw.search.events.v1" || len(msg.Headers) != 1 {
			return errors.New("unexpected topic or headers")
		}
		return nil
	})
	p := newProducerWith(sp)

	err := p.Publish(context.Background(), "pw.search.events.v1", "s-1", []byte(`{}`), map[string]string{"content-type": "application/cloudevents+json"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerRespectsCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newProducerWith(sp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, "t", "k", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}
