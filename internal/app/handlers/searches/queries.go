package searches

import (
	"context"

	"pricewatch/internal/app/dto"
	domainsearches "pricewatch/internal/domain/searches"
)

const (
	getSearchKey    = "searches.get"
	listSearchesKey = "searches.list"
)

type GetSearchQuery struct {
	ID string `validate:"required"`
}

func (q GetSearchQuery) Key() string { return getSearchKey }

type GetSearchHandler struct {
	Deps
}

func (h *GetSearchHandler) Handle(ctx context.Context, q GetSearchQuery) (*dto.Search, error) {
	id := domainsearches.SearchID(q.ID)
	search, err := h.Repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := dto.MapSearch(search, h.running(id))
	return &result, nil
}

type ListSearchesQuery struct{}

func (q ListSearchesQuery) Key() string { return listSearchesKey }

type ListSearchesHandler struct {
	Deps
}

func (h *ListSearchesHandler) Handle(ctx context.Context, _ ListSearchesQuery) (dto.SearchCatalog, error) {
	items, err := h.Repo.List(ctx)
	if err != nil {
		return dto.SearchCatalog{}, err
	}
	out := dto.SearchCatalog{Items: make([]dto.Search, 0, len(items)), Total: len(items)}
	for _, s := range items {
		out.Items = append(out.Items, dto.MapSearch(s, h.running(s.ID)))
	}
	return out, nil
}
