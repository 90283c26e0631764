package searches

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/app/commands"
	"pricewatch/internal/app/dto"
	"pricewatch/internal/app/middleware"
	"pricewatch/internal/app/queries"
	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/pricing"
	domainsearches "pricewatch/internal/domain/searches"
	"pricewatch/internal/domain/shared/daterange"
	"pricewatch/internal/infra/storage/memory"
)

var now = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu      sync.Mutex
	synced  map[domainsearches.SearchID]domainsearches.Schedule
	removed []domainsearches.SearchID
}

func (f *fakeScheduler) Sync(id domainsearches.SearchID, s domainsearches.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.synced == nil {
		f.synced = map[domainsearches.SearchID]domainsearches.Schedule{}
	}
	f.synced[id] = s
	return nil
}

func (f *fakeScheduler) Remove(id domainsearches.SearchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

type blockingOracle struct {
	release chan struct{}
}

func (b *blockingOracle) LowestPrice(ctx context.Context, _ string) (pricing.Price, error) {
	select {
	case <-b.release:
		return pricing.Known(80), nil
	case <-ctx.Done():
		return pricing.Unknown(), ctx.Err()
	}
}

type harness struct {
	cmds      commands.Bus
	queries   queries.Bus
	repo      *memory.SearchRepository
	scheduler *fakeScheduler
	oracle    *blockingOracle
	orch      *refresh.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewSearchRepository()
	oracle := &blockingOracle{release: make(chan struct{})}
	orch, err := refresh.New(refresh.Config{
		Store:    repo,
		Oracle:   oracle,
		Now:      func() time.Time { return now },
		Location: time.UTC,
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	scheduler := &fakeScheduler{}
	seq := 0
	deps := Deps{
		Repo:      repo,
		Refresher: orch,
		Scheduler: scheduler,
		Logger:    logger,
		Now:       func() time.Time { return now },
		NewID: func() string {
			seq++
			return "s-" + string(rune('0'+seq))
		},
	}
	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	Register(cmdBus, queryBus, deps)

	v := middleware.NewValidator()
	return &harness{
		cmds:      middleware.ChainCommands(cmdBus, middleware.Validation(v)),
		queries:   middleware.ChainQueries(queryBus, middleware.QueryValidation(v)),
		repo:      repo,
		scheduler: scheduler,
		oracle:    oracle,
		orch:      orch,
	}
}

func (h *harness) create(t *testing.T, url string) *dto.Search {
	t.Helper()
	out, err := commands.Dispatch[CreateSearchCommand, *dto.Search](context.Background(), h.cmds, CreateSearchCommand{
		Name: "Soho", URL: url, CleaningFee: 40,
	})
	require.NoError(t, err)
	return out
}

func TestCreateSearch(t *testing.T) {
	h := newHarness(t)
	out := h.create(t, "https://www.airbnb.co.uk/s/London/homes?checkin=2024-07-01&checkout=2024-07-03")

	assert.Equal(t, "s-1", out.ID)
	assert.Equal(t, "idle", out.Status)
	assert.Equal(t, "2024-07-01", out.CheckinDate)
	assert.Len(t, out.PricingData.OneNight, pricing.ShortStayHorizon)
	assert.Contains(t, h.scheduler.synced, domainsearches.SearchID("s-1"))
}

func TestCreateSearchValidation(t *testing.T) {
	h := newHarness(t)
	_, err := commands.Dispatch[CreateSearchCommand, *dto.Search](context.Background(), h.cmds, CreateSearchCommand{URL: "https://x.test"})
	assert.ErrorIs(t, err, middleware.ErrValidation)

	_, err = commands.Dispatch[CreateSearchCommand, *dto.Search](context.Background(), h.cmds, CreateSearchCommand{Name: "a", URL: "https://x.test", CleaningFee: -5})
	assert.ErrorIs(t, err, middleware.ErrValidation)
}

func TestUpdateSearchKeepsPricing(t *testing.T) {
	h := newHarness(t)
	h.create(t, "https://www.airbnb.co.uk/s/London/homes?checkin=2024-07-01")
	snap := pricing.Generate(daterange.NewDate(2024, time.July, 1))
	require.NoError(t, snap.Set(pricing.Slot{Nights: 14}, pricing.Known(1400)))
	require.NoError(t, h.repo.UpdatePricing(context.Background(), "s-1", snap))

	out, err := commands.Dispatch[UpdateSearchCommand, *dto.Search](context.Background(), h.cmds, UpdateSearchCommand{
		ID: "s-1", Name: "Renamed", URL: "https://www.airbnb.co.uk/s/Paris/homes", CleaningFee: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", out.Name)
	assert.Equal(t, 1, out.PricingData.Priced)
	require.NotNil(t, out.PricingData.FourteenNights.PerNight)
	assert.Equal(t, 92.86, *out.PricingData.FourteenNights.PerNight)
}

func TestRunSearchAcknowledgesAndRejectsOverlap(t *testing.T) {
	h := newHarness(t)
	h.create(t, "https://www.airbnb.co.uk/s/London/homes")

	ack, err := commands.Dispatch[RunSearchCommand, dto.RefreshAccepted](context.Background(), h.cmds, RunSearchCommand{ID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, dto.RefreshAccepted{Success: true, Message: "Search started", Status: "running"}, ack)

	got, err := queries.Ask[GetSearchQuery, *dto.Search](context.Background(), h.queries, GetSearchQuery{ID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.True(t, got.Refreshing)

	_, err = commands.Dispatch[RunSearchCommand, dto.RefreshAccepted](context.Background(), h.cmds, RunSearchCommand{ID: "s-1"})
	assert.ErrorIs(t, err, refresh.ErrInProgress)

	_, err = commands.Dispatch[RunSearchCommand, dto.RefreshAccepted](context.Background(), h.cmds, RunSearchCommand{ID: "missing"})
	assert.ErrorIs(t, err, domainsearches.ErrNotFound)
}

func TestDeleteCancelsRefresh(t *testing.T) {
	h := newHarness(t)
	h.create(t, "https://www.airbnb.co.uk/s/London/homes")
	_, err := commands.Dispatch[RunSearchCommand, dto.RefreshAccepted](context.Background(), h.cmds, RunSearchCommand{ID: "s-1"})
	require.NoError(t, err)

	removed, err := commands.Dispatch[DeleteSearchCommand, *dto.Search](context.Background(), h.cmds, DeleteSearchCommand{ID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", removed.ID)
	assert.False(t, h.orch.Running("s-1"))
	assert.Equal(t, []domainsearches.SearchID{"s-1"}, h.scheduler.removed)

	_, err = queries.Ask[GetSearchQuery, *dto.Search](context.Background(), h.queries, GetSearchQuery{ID: "s-1"})
	assert.ErrorIs(t, err, domainsearches.ErrNotFound)
}

func TestUpdateSchedule(t *testing.T) {
	h := newHarness(t)
	h.create(t, "https://www.airbnb.co.uk/s/London/homes")

	out, err := commands.Dispatch[UpdateScheduleCommand, *dto.Search](context.Background(), h.cmds, UpdateScheduleCommand{
		ID:      "s-1",
		Enabled: true,
		Times:   []ScheduleTimeInput{{Time: "6:30", Enabled: true}, {Time: "18:00"}},
	})
	require.NoError(t, err)
	assert.True(t, out.Schedule.Enabled)
	assert.Equal(t, "06:30", out.Schedule.Times[0].Time)
	assert.True(t, h.scheduler.synced["s-1"].Enabled)

	_, err = commands.Dispatch[UpdateScheduleCommand, *dto.Search](context.Background(), h.cmds, UpdateScheduleCommand{
		ID:    "s-1",
		Times: []ScheduleTimeInput{{Time: "1:00"}, {Time: "2:00"}, {Time: "3:00"}, {Time: "4:00"}},
	})
	assert.ErrorIs(t, err, middleware.ErrValidation)

	_, err = commands.Dispatch[UpdateScheduleCommand, *dto.Search](context.Background(), h.cmds, UpdateScheduleCommand{
		ID:    "s-1",
		Times: []ScheduleTimeInput{{Time: "noon"}},
	})
	assert.ErrorIs(t, err, domainsearches.ErrInvalidScheduleTime)
}

func TestListSearches(t *testing.T) {
	h := newHarness(t)
	h.create(t, "https://a.test")
	now = now.Add(time.Minute)
	t.Cleanup(func() { now = now.Add(-time.Minute) })
	h.create(t, "https://b.test")

	out, err := queries.Ask[ListSearchesQuery, dto.SearchCatalog](context.Background(), h.queries, ListSearchesQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, out.Total)
	assert.Equal(t, "s-2", out.Items[0].ID)
}
