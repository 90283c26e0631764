package searches

import (
	"context"
	"errors"
	"fmt"

	"pricewatch/internal/app/dto"
	domainsearches "pricewatch/internal/domain/searches"
)

const (
	createSearchKey   = "searches.create"
	updateSearchKey   = "searches.update"
	deleteSearchKey   = "searches.delete"
	runSearchKey      = "searches.run"
	updateScheduleKey = "searches.schedule.update"
)

var ErrRefresherUnavailable = errors.New("refresh orchestrator unavailable")

type CreateSearchCommand struct {
	Name        string  `validate:"required,max=200"`
	URL         string  `validate:"required,max=4096"`
	CleaningFee float64 `validate:"gte=0"`
}

func (c CreateSearchCommand) Key() string { return createSearchKey }

type CreateSearchHandler struct {
	Deps
}

func (h *CreateSearchHandler) Handle(ctx context.Context, cmd CreateSearchCommand) (*dto.Search, error) {
	search, err := domainsearches.NewSearch(domainsearches.CreateSearchParams{
		ID:          h.newID(),
		Name:        cmd.Name,
		URL:         cmd.URL,
		CleaningFee: cmd.CleaningFee,
		Now:         h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := h.Repo.Create(ctx, search); err != nil {
		return nil, fmt.Errorf("create search: %w", err)
	}
	h.syncSchedule(search)
	h.publish(ctx, search)

	if h.Logger != nil {
		h.Logger.Info("search created", "search_id", search.ID, "seeded", !search.Pricing.Empty())
	}
	result := dto.MapSearch(search, false)
	return &result, nil
}

type UpdateSearchCommand struct {
	ID          string  `validate:"required"`
	Name        string  `validate:"required,max=200"`
	URL         string  `validate:"required,max=4096"`
	CleaningFee float64 `validate:"gte=0"`
}

func (c UpdateSearchCommand) Key() string { return updateSearchKey }

type UpdateSearchHandler struct {
	Deps
}

// Handle edits the user fields. Stored windows are kept until the next refresh.
func (h *UpdateSearchHandler) Handle(ctx context.Context, cmd UpdateSearchCommand) (*dto.Search, error) {
	id := domainsearches.SearchID(cmd.ID)
	search, err := h.Repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	update, err := search.ChangeDetails(cmd.Name, cmd.URL, cmd.CleaningFee, h.now())
	if err != nil {
		return nil, err
	}
	saved, err := h.Repo.UpdateDetails(ctx, id, update)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, search)

	result := dto.MapSearch(saved, h.running(id))
	return &result, nil
}

type DeleteSearchCommand struct {
	ID string `validate:"required"`
}

func (c DeleteSearchCommand) Key() string { return deleteSearchKey }

type DeleteSearchHandler struct {
	Deps
}

// Handle stops any in-flight refresh first so it cannot write into a deleted search.
func (h *DeleteSearchHandler) Handle(ctx context.Context, cmd DeleteSearchCommand) (*dto.Search, error) {
	id := domainsearches.SearchID(cmd.ID)
	if h.Refresher != nil {
		if err := h.Refresher.Cancel(ctx, id); err != nil {
			return nil, fmt.Errorf("cancel refresh: %w", err)
		}
	}
	removed, err := h.Repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Scheduler != nil {
		h.Scheduler.Remove(id)
	}
	removed.MarkDeleted(h.now())
	h.publish(ctx, removed)

	if h.Logger != nil {
		h.Logger.Info("search deleted", "search_id", id)
	}
	result := dto.MapSearch(removed, false)
	return &result, nil
}

type RunSearchCommand struct {
	ID string `validate:"required"`
}

func (c RunSearchCommand) Key() string { return runSearchKey }

type RunSearchHandler struct {
	Deps
}

func (h *RunSearchHandler) Handle(ctx context.Context, cmd RunSearchCommand) (dto.RefreshAccepted, error) {
	if h.Refresher == nil {
		return dto.RefreshAccepted{}, ErrRefresherUnavailable
	}
	if _, err := h.Refresher.Trigger(ctx, domainsearches.SearchID(cmd.ID)); err != nil {
		return dto.RefreshAccepted{}, err
	}
	return dto.RefreshAccepted{
		Success: true,
		Message: "Search started",
		Status:  string(domainsearches.StatusRunning),
	}, nil
}

type ScheduleTimeInput struct {
	Time    string `validate:"required"`
	Enabled bool
}

type UpdateScheduleCommand struct {
	ID      string `validate:"required"`
	Enabled bool
	Times   []ScheduleTimeInput `validate:"max=3,dive"`
}

func (c UpdateScheduleCommand) Key() string { return updateScheduleKey }

type UpdateScheduleHandler struct {
	Deps
}

func (h *UpdateScheduleHandler) Handle(ctx context.Context, cmd UpdateScheduleCommand) (*dto.Search, error) {
	id := domainsearches.SearchID(cmd.ID)
	search, err := h.Repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule := domainsearches.Schedule{Enabled: cmd.Enabled}
	for _, t := range cmd.Times {
		schedule.Times = append(schedule.Times, domainsearches.ScheduleTime{At: t.Time, Enabled: t.Enabled})
	}
	now := h.now()
	if err := search.ChangeSchedule(schedule, now); err != nil {
		return nil, err
	}
	saved, err := h.Repo.UpdateSchedule(ctx, id, search.Schedule, now)
	if err != nil {
		return nil, err
	}
	h.syncSchedule(saved)

	result := dto.MapSearch(saved, h.running(id))
	return &result, nil
}
