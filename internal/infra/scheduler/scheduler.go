package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/searches"
)

const triggerTimeout = 10 * time.Second

type Refresher interface {
	Trigger(ctx context.Context, id searches.SearchID) (*refresh.Run, error)
}

type Lister interface {
	List(ctx context.Context) ([]*searches.Search, error)
}

// Scheduler fires refreshes at the daily times configured on each search.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[searches.SearchID][]cron.EntryID
}

func New(refresher Refresher, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		refresher: refresher,
		logger:    logger,
		entries:   make(map[searches.SearchID][]cron.EntryID),
	}
}

// Load registers the schedules of every stored search.
func (s *Scheduler) Load(ctx context.Context, repo Lister) error {
	items, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list searches: %w", err)
	}
	var errs []error
	for _, item := range items {
		if err := s.Sync(item.ID, item.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.ID, err))
		}
	}
	s.logger.Info("schedules loaded", "searches", len(items), "entries", s.size())
	return errors.Join(errs...)
}

// Sync replaces the entries for id with the active times of schedule.
func (s *Scheduler) Sync(id searches.SearchID, schedule searches.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)

	var added []cron.EntryID
	for _, at := range schedule.ActiveTimes() {
		entry, err := s.cron.AddFunc(specFor(at), func() { s.fire(id) })
		if err != nil {
			for _, e := range added {
				s.cron.Remove(e)
			}
			return fmt.Errorf("register %s: %w", at, err)
		}
		added = append(added, entry)
	}
	if len(added) > 0 {
		s.entries[id] = added
	}
	return nil
}

func (s *Scheduler) Remove(id searches.SearchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop prevents new firings and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next firing time for id.
func (s *Scheduler) Next(id searches.SearchID, after time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, e := range s.entries[id] {
		t := s.cron.Entry(e).Schedule.Next(after)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) fire(id searches.SearchID) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()
	_, err := s.refresher.Trigger(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("scheduled refresh started", "search_id", id)
	case errors.Is(err, refresh.ErrInProgress):
		s.logger.Info("scheduled refresh skipped, already running", "search_id", id)
	case errors.Is(err, searches.ErrNotFound):
		s.logger.Warn("scheduled search no longer exists", "search_id", id)
		s.Remove(id)
	default:
		s.logger.Error("scheduled refresh failed to start", "search_id", id, "error", err)
	}
}

func (s *Scheduler) removeLocked(id searches.SearchID) {
	for _, e := range s.entries[id] {
		s.cron.Remove(e)
	}
	delete(s.entries, id)
}

func (s *Scheduler) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, es := range s.entries {
		n += len(es)
	}
	return n
}

func specFor(at searches.ClockTime) string {
	return fmt.Sprintf("0 %d %d * * *", at.Minute, at.Hour)
}
