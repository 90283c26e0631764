package policies

import "pricewatch/internal/domain/searches"

// RefreshScheduler keeps the daily refresh entries of each search in sync with
// its stored schedule.
type RefreshScheduler interface {
	Sync(id searches.SearchID, schedule searches.Schedule) error
	Remove(id searches.SearchID)
}
