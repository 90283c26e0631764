package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/searches"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []searches.SearchID
	err   error
}

func (f *fakeRefresher) Trigger(_ context.Context, id searches.SearchID) (*refresh.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return nil, f.err
}

type staticLister []*searches.Search

func (l staticLister) List(context.Context) ([]*searches.Search, error) { return l, nil }

func newScheduler(r Refresher) *Scheduler {
	return New(r, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func enabled(times ...string) searches.Schedule {
	s := searches.Schedule{Enabled: true}
	for _, t := range times {
		s.Times = append(s.Times, searches.ScheduleTime{At: t, Enabled: true})
	}
	return s
}

func TestSyncRegistersActiveTimes(t *testing.T) {
	s := newScheduler(&fakeRefresher{})
	require.NoError(t, s.Sync("s-1", enabled("07:00", "21:30")))
	assert.Equal(t, 2, s.size())

	next, ok := s.Next("s-1", time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.June, 1, 21, 30, 0, 0, time.UTC), next)

	next, _ = s.Next("s-1", time.Date(2024, time.June, 1, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.June, 2, 7, 0, 0, 0, time.UTC), next)
}

func TestSyncReplacesAndDisables(t *testing.T) {
	s := newScheduler(&fakeRefresher{})
	require.NoError(t, s.Sync("s-1", enabled("07:00", "14:00", "21:00")))
	require.NoError(t, s.Sync("s-1", enabled("09:15")))
	assert.Equal(t, 1, s.size())

	require.NoError(t, s.Sync("s-1", searches.DefaultSchedule()))
	assert.Equal(t, 0, s.size())
	_, ok := s.Next("s-1", time.Now())
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	s := newScheduler(&fakeRefresher{})
	require.NoError(t, s.Sync("s-1", enabled("07:00")))
	require.NoError(t, s.Sync("s-2", enabled("08:00")))
	s.Remove("s-1")
	assert.Equal(t, 1, s.size())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestLoad(t *testing.T) {
	s := newScheduler(&fakeRefresher{})
	err := s.Load(context.Background(), staticLister{
		{ID: "s-1", Schedule: enabled("07:00")},
		{ID: "s-2", Schedule: searches.DefaultSchedule()},
		{ID: "s-3", Schedule: enabled("06:00", "06:00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.size())
}

func TestFireTriggersRefresh(t *testing.T) {
	r := &fakeRefresher{}
	s := newScheduler(r)
	s.fire("s-1")
	assert.Equal(t, []searches.SearchID{"s-1"}, r.calls)

	r.err = refresh.ErrInProgress
	s.fire("s-1")
	assert.Len(t, r.calls, 2)
}

func TestFireDropsDeletedSearch(t *testing.T) {
	r := &fakeRefresher{err: searches.ErrNotFound}
	s := newScheduler(r)
	require.NoError(t, s.Sync("gone", enabled("07:00")))
	s.fire("gone")
	assert.Equal(t, 0, s.size())
}

func TestStartStop(t *testing.T) {
	s := newScheduler(&fakeRefresher{})
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestSpecFor(t *testing.T) {
	assert.Equal(t, "0 5 7 * * *", specFor(searches.ClockTime{Hour: 7, Minute: 5}))
}
