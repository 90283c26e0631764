package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain/searches"
	"pricewatch/internal/domain/shared/events"
)

type memoryBox struct {
	records []EventRecord
	failOn  string
}

func (b *memoryBox) Add(_ context.Context, rec EventRecord) error {
	if rec.Name == b.failOn {
		return errors.New("broker down")
	}
	b.records = append(b.records, rec)
	return nil
}

func TestFlushEncodesAndDrains(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, err := searches.NewSearch(searches.CreateSearchParams{ID: "s-9", Name: "n", URL: "https://x.test", Now: now})
	require.NoError(t, err)
	s.BeginRefresh(now)

	box := &memoryBox{}
	enc := JSONEventEncoder{IDGenerator: func() string { return "evt-1" }}
	require.NoError(t, Flush(context.Background(), box, enc, s))

	require.Len(t, box.records, 2)
	assert.Equal(t, "search.created", box.records[0].Name)
	assert.Equal(t, "s-9", box.records[1].Aggregate)
	assert.Equal(t, "evt-1", box.records[1].ID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(box.records[1].Payload, &payload))
	assert.Equal(t, "s-9", payload["search_id"])
	assert.Empty(t, s.PendingEvents())
}

func TestRecordDomainEventsContinuesPastFailures(t *testing.T) {
	now := time.Now()
	evs := []events.DomainEvent{
		searches.RefreshStartedEvent{SearchID: "a", At: now},
		searches.SearchDeletedEvent{SearchID: "a", At: now},
	}
	box := &memoryBox{failOn: "search.refresh.started"}

	err := RecordDomainEvents(context.Background(), box, nil, evs)
	require.Error(t, err)
	require.Len(t, box.records, 1)
	assert.Equal(t, "search.deleted", box.records[0].Name)
}
