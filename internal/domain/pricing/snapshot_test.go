package pricing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain/shared/daterange"
)

func TestGenerateShortStays(t *testing.T) {
	anchors := []daterange.Date{
		daterange.NewDate(2024, time.June, 1),
		daterange.NewDate(2024, time.February, 26),
		daterange.NewDate(2024, time.December, 29),
		daterange.NewDate(2024, time.March, 28),
	}
	for _, anchor := range anchors {
		t.Run(anchor.String(), func(t *testing.T) {
			snap := Generate(anchor)
			for _, nights := range ShortStayNights {
				list := snap.short(nights)
				require.Len(t, list, ShortStayHorizon)
				for i, w := range list {
					assert.Equal(t, anchor.AddDays(i), w.CheckIn, "%dN[%d] checkin", nights, i)
					assert.Equal(t, w.CheckIn.AddDays(nights), w.CheckOut, "%dN[%d] checkout", nights, i)
					assert.Equal(t, w.CheckIn, w.Anchor)
					assert.Equal(t, nights, w.Nights())
					assert.False(t, w.Price.IsKnown())
				}
			}
		})
	}
}

func TestGenerateLongStays(t *testing.T) {
	anchor := daterange.NewDate(2024, time.June, 1)
	snap := Generate(anchor)

	assert.Equal(t, "2024-06-01", snap.FourteenNights.CheckIn.String())
	assert.Equal(t, "2024-06-15", snap.FourteenNights.CheckOut.String())
	assert.Equal(t, "2024-06-01", snap.ThirtyNights.CheckIn.String())
	assert.Equal(t, "2024-07-01", snap.ThirtyNights.CheckOut.String())
	assert.Equal(t, anchor, snap.ThirtyNights.Anchor)
}

func TestGenerateIsDeterministic(t *testing.T) {
	anchor := daterange.NewDate(2025, time.January, 31)
	assert.Equal(t, Generate(anchor), Generate(anchor))
}

func TestSlotsFollowFetchOrder(t *testing.T) {
	slots := Generate(daterange.NewDate(2024, time.June, 1)).Slots()
	require.Len(t, slots, SlotCount)

	assert.Equal(t, Slot{Nights: 1, Index: 0}, slots[0])
	assert.Equal(t, Slot{Nights: 1, Index: 6}, slots[6])
	assert.Equal(t, Slot{Nights: 2, Index: 0}, slots[7])
	assert.Equal(t, Slot{Nights: 3, Index: 6}, slots[20])
	assert.Equal(t, Slot{Nights: 14}, slots[21])
	assert.Equal(t, Slot{Nights: 30}, slots[22])
}

func TestEmptySnapshotHasNoSlots(t *testing.T) {
	var snap Snapshot
	assert.True(t, snap.Empty())
	assert.Empty(t, snap.Slots())
	assert.ErrorIs(t, snap.Set(Slot{Nights: 14}, Known(1)), ErrUnknownSlot)
}

func TestSetAndReset(t *testing.T) {
	snap := Generate(daterange.NewDate(2024, time.June, 1))
	require.NoError(t, snap.Set(Slot{Nights: 2, Index: 3}, Known(250)))
	require.NoError(t, snap.Set(Slot{Nights: 30}, Known(3000)))
	assert.ErrorIs(t, snap.Set(Slot{Nights: 2, Index: 7}, Known(1)), ErrUnknownSlot)
	assert.Equal(t, 2, snap.Known())

	reset := snap.Reset()
	assert.Equal(t, 0, reset.Known())
	assert.Equal(t, 2, snap.Known(), "reset must not alias the source snapshot")
}

func TestCloneDoesNotShareWindows(t *testing.T) {
	snap := Generate(daterange.NewDate(2024, time.June, 1))
	clone := snap.Clone()
	require.NoError(t, clone.Set(Slot{Nights: 1}, Known(99)))

	w, ok := snap.Window(Slot{Nights: 1})
	require.True(t, ok)
	assert.False(t, w.Price.IsKnown())
}

func TestSnapshotJSONShape(t *testing.T) {
	snap := Generate(daterange.NewDate(2024, time.June, 1))
	require.NoError(t, snap.Set(Slot{Nights: 1}, Known(100)))

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	first := generic["oneNight"].([]any)[0].(map[string]any)
	assert.Equal(t, "2024-06-01", first["checkin"])
	assert.Equal(t, "2024-06-02", first["checkout"])
	assert.Equal(t, "2024-06-01", first["date"])
	assert.Equal(t, 100.0, first["price"])
	assert.Nil(t, generic["fourteenNights"].(map[string]any)["price"])

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, snap, decoded)
}
