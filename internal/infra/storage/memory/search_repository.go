package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/domain/pricing"
	"pricewatch/internal/domain/searches"
)

// ErrDuplicateSearch is returned when Create sees an id twice.
var ErrDuplicateSearch = errors.New("memory: search already exists")

// SearchRepository is an in-memory implementation for local runs and tests.
// Stored searches are copied on the way in and out.
type SearchRepository struct {
	mu    sync.RWMutex
	items map[searches.SearchID]*searches.Search
}

var _ searches.Repository = (*SearchRepository)(nil)

// NewSearchRepository builds an empty repository.
func NewSearchRepository() *SearchRepository {
	return &SearchRepository{items: make(map[searches.SearchID]*searches.Search)}
}

func (r *SearchRepository) Create(ctx context.Context, search *searches.Search) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[search.ID]; ok {
		return ErrDuplicateSearch
	}
	r.items[search.ID] = search.Clone()
	return nil
}

// ByID returns a copy of the search or searches.ErrNotFound.
func (r *SearchRepository) ByID(ctx context.Context, id searches.SearchID) (*searches.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	search, ok := r.items[id]
	if !ok {
		return nil, searches.ErrNotFound
	}
	return search.Clone(), nil
}

// List returns every search, newest first.
func (r *SearchRepository) List(ctx context.Context) ([]*searches.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*searches.Search, 0, len(r.items))
	for _, search := range r.items {
		out = append(out, search.Clone())
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *SearchRepository) UpdateDetails(ctx context.Context, id searches.SearchID, update searches.DetailsUpdate) (*searches.Search, error) {
	var out *searches.Search
	err := r.mutate(ctx, id, func(s *searches.Search) {
		s.Name = update.Name
		s.URL = update.URL
		s.CleaningFee = update.CleaningFee
		s.CheckinDate = update.CheckinDate
		s.CheckoutDate = update.CheckoutDate
		touch(s, update.At)
		out = s.Clone()
	})
	return out, err
}

func (r *SearchRepository) UpdateStatus(ctx context.Context, id searches.SearchID, update searches.StatusUpdate) error {
	return r.mutate(ctx, id, func(s *searches.Search) {
		s.Status = update.Status
		if !update.LastRunAt.IsZero() {
			s.LastRunAt = update.LastRunAt
		}
		s.LastError = update.LastError
		touch(s, update.At)
	})
}

func (r *SearchRepository) UpdatePricing(ctx context.Context, id searches.SearchID, snapshot pricing.Snapshot) error {
	return r.mutate(ctx, id, func(s *searches.Search) {
		s.Pricing = snapshot.Clone()
	})
}

func (r *SearchRepository) UpdateSchedule(ctx context.Context, id searches.SearchID, schedule searches.Schedule, at time.Time) (*searches.Search, error) {
	var out *searches.Search
	err := r.mutate(ctx, id, func(s *searches.Search) {
		s.Schedule = schedule.Normalized()
		touch(s, at)
		out = s.Clone()
	})
	return out, err
}

// Delete removes the search and returns what was stored.
func (r *SearchRepository) Delete(ctx context.Context, id searches.SearchID) (*searches.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	search, ok := r.items[id]
	if !ok {
		return nil, searches.ErrNotFound
	}
	delete(r.items, id)
	return search, nil
}

func (r *SearchRepository) Ping(context.Context) error { return nil }

func (r *SearchRepository) mutate(ctx context.Context, id searches.SearchID, fn func(*searches.Search)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	search, ok := r.items[id]
	if !ok {
		return searches.ErrNotFound
	}
	fn(search)
	return nil
}

func touch(s *searches.Search, at time.Time) {
	if !at.IsZero() {
		s.UpdatedAt = at.UTC()
	}
}
