package searches

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pricewatch/internal/app/outbox"
	"pricewatch/internal/app/policies"
	"pricewatch/internal/app/refresh"
	domainsearches "pricewatch/internal/domain/searches"
)

// Refresher is the part of refresh.Orchestrator the handlers use.
type Refresher interface {
	Trigger(ctx context.Context, id domainsearches.SearchID) (*refresh.Run, error)
	Cancel(ctx context.Context, id domainsearches.SearchID) error
	Running(id domainsearches.SearchID) bool
}

// Deps is shared by every search handler. Scheduler and Events are optional.
type Deps struct {
	Repo      domainsearches.Repository
	Refresher Refresher
	Scheduler policies.RefreshScheduler
	Events    outbox.Outbox
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) newID() domainsearches.SearchID {
	if d.NewID != nil {
		return domainsearches.SearchID(d.NewID())
	}
	return domainsearches.SearchID(uuid.NewString())
}

func (d Deps) running(id domainsearches.SearchID) bool {
	return d.Refresher != nil && d.Refresher.Running(id)
}

func (d Deps) publish(ctx context.Context, s *domainsearches.Search) {
	if err := outbox.Flush(ctx, d.Events, nil, s); err != nil && d.Logger != nil {
		d.Logger.Warn("publish search events", "search_id", s.ID, "error", err)
	}
}

func (d Deps) syncSchedule(s *domainsearches.Search) {
	if d.Scheduler == nil {
		return
	}
	if err := d.Scheduler.Sync(s.ID, s.Schedule); err != nil && d.Logger != nil {
		d.Logger.Warn("sync refresh schedule", "search_id", s.ID, "error", err)
	}
}
