package dto

import (
	"time"

	"pricewatch/internal/domain/pricing"
	"pricewatch/internal/domain/searches"
)

// Field names follow the dashboard client, which reads camelCase.

type Window struct {
	CheckIn  string   `json:"checkin"`
	CheckOut string   `json:"checkout"`
	Date     string   `json:"date"`
	Nights   int      `json:"nights"`
	Price    *float64 `json:"price"`
	PerNight *float64 `json:"perNight"`
}

type Pricing struct {
	OneNight       []Window `json:"oneNight"`
	TwoNights      []Window `json:"twoNights"`
	ThreeNights    []Window `json:"threeNights"`
	FourteenNights *Window  `json:"fourteenNights"`
	ThirtyNights   *Window  `json:"thirtyNights"`
	Priced         int      `json:"priced"`
}

type ScheduleTime struct {
	Time    string `json:"time"`
	Enabled bool   `json:"enabled"`
}

type Schedule struct {
	Enabled bool           `json:"enabled"`
	Times   []ScheduleTime `json:"times"`
}

type Search struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	CleaningFee  float64    `json:"cleaningFee"`
	CheckinDate  string     `json:"checkinDate,omitempty"`
	CheckoutDate string     `json:"checkoutDate,omitempty"`
	Status       string     `json:"status"`
	Refreshing   bool       `json:"refreshing"`
	LastRun      *time.Time `json:"lastRun"`
	LastError    string     `json:"lastError,omitempty"`
	PricingData  Pricing    `json:"pricingData"`
	Schedule     Schedule   `json:"schedule"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type SearchCatalog struct {
	Items []Search `json:"items"`
	Total int      `json:"total"`
}

// RefreshAccepted acknowledges a refresh trigger. It never carries the outcome.
type RefreshAccepted struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// MapSearch converts the aggregate. refreshing reports an in-flight run in this process.
func MapSearch(s *searches.Search, refreshing bool) Search {
	if s == nil {
		return Search{}
	}
	out := Search{
		ID:           string(s.ID),
		Name:         s.Name,
		URL:          s.URL,
		CleaningFee:  s.CleaningFee,
		CheckinDate:  s.CheckinDate.String(),
		CheckoutDate: s.CheckoutDate.String(),
		Status:       string(s.Status),
		Refreshing:   refreshing,
		LastError:    s.LastError,
		PricingData:  MapPricing(s.Pricing, s.CleaningFee),
		Schedule:     MapSchedule(s.Schedule),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if !s.LastRunAt.IsZero() {
		at := s.LastRunAt
		out.LastRun = &at
	}
	return out
}

func MapPricing(snap pricing.Snapshot, cleaningFee float64) Pricing {
	out := Pricing{
		OneNight:    mapWindows(snap.OneNight, cleaningFee),
		TwoNights:   mapWindows(snap.TwoNights, cleaningFee),
		ThreeNights: mapWindows(snap.ThreeNights, cleaningFee),
		Priced:      snap.Known(),
	}
	if !snap.FourteenNights.IsZero() {
		w := mapWindow(snap.FourteenNights, cleaningFee)
		out.FourteenNights = &w
	}
	if !snap.ThirtyNights.IsZero() {
		w := mapWindow(snap.ThirtyNights, cleaningFee)
		out.ThirtyNights = &w
	}
	return out
}

func MapSchedule(s searches.Schedule) Schedule {
	out := Schedule{Enabled: s.Enabled, Times: make([]ScheduleTime, 0, len(s.Times))}
	for _, t := range s.Times {
		out.Times = append(out.Times, ScheduleTime{Time: t.At, Enabled: t.Enabled})
	}
	return out
}

func mapWindows(in []pricing.Window, cleaningFee float64) []Window {
	out := make([]Window, 0, len(in))
	for _, w := range in {
		out = append(out, mapWindow(w, cleaningFee))
	}
	return out
}

func mapWindow(w pricing.Window, cleaningFee float64) Window {
	nights := w.Nights()
	return Window{
		CheckIn:  w.CheckIn.String(),
		CheckOut: w.CheckOut.String(),
		Date:     w.Anchor.String(),
		Nights:   nights,
		Price:    w.Price.Float(),
		PerNight: pricing.PerNight(w.Price, cleaningFee, nights).Float(),
	}
}
