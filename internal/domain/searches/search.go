package searches

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"pricewatch/internal/domain/pricing"
	"pricewatch/internal/domain/shared/daterange"
	"pricewatch/internal/domain/shared/events"
)

var (
	ErrNotFound       = errors.New("searches: search not found")
	ErrIDRequired     = errors.New("searches: id is required")
	ErrNameRequired   = errors.New("searches: name is required")
	ErrURLRequired    = errors.New("searches: url is required")
	ErrNegativeFee    = errors.New("searches: cleaning fee must be non-negative")
	ErrInvalidStatus  = errors.New("searches: invalid status")
	ErrInvalidRefresh = errors.New("searches: refresh transition not allowed")
)

type SearchID string

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusError:
		return s, nil
	case "":
		return StatusIdle, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Search is a monitored listing search and the prices last observed for it.
type Search struct {
	ID           SearchID
	Name         string
	URL          string
	CleaningFee  float64
	CheckinDate  daterange.Date
	CheckoutDate daterange.Date
	Status       Status
	LastRunAt    time.Time
	LastError    string
	Pricing      pricing.Snapshot
	Schedule     Schedule
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

// Repository is the document store holding searches. Partial updates never
// touch fields outside their own group.
type Repository interface {
	Create(ctx context.Context, search *Search) error
	ByID(ctx context.Context, id SearchID) (*Search, error)
	List(ctx context.Context) ([]*Search, error)
	UpdateDetails(ctx context.Context, id SearchID, update DetailsUpdate) (*Search, error)
	UpdateStatus(ctx context.Context, id SearchID, update StatusUpdate) error
	UpdatePricing(ctx context.Context, id SearchID, snapshot pricing.Snapshot) error
	UpdateSchedule(ctx context.Context, id SearchID, schedule Schedule, at time.Time) (*Search, error)
	Delete(ctx context.Context, id SearchID) (*Search, error)
	Ping(ctx context.Context) error
}

// DetailsUpdate carries the user-editable fields.
type DetailsUpdate struct {
	Name         string
	URL          string
	CleaningFee  float64
	CheckinDate  daterange.Date
	CheckoutDate daterange.Date
	At           time.Time
}

// StatusUpdate carries the refresh bookkeeping fields. A zero LastRunAt keeps the stored value.
type StatusUpdate struct {
	Status    Status
	LastRunAt time.Time
	LastError string
	At        time.Time
}

type CreateSearchParams struct {
	ID          SearchID
	Name        string
	URL         string
	CleaningFee float64
	Now         time.Time
}

func NewSearch(params CreateSearchParams) (*Search, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	details, err := newDetails(params.Name, params.URL, params.CleaningFee, params.Now)
	if err != nil {
		return nil, err
	}

	search := &Search{
		ID:           params.ID,
		Name:         details.Name,
		URL:          details.URL,
		CleaningFee:  details.CleaningFee,
		CheckinDate:  details.CheckinDate,
		CheckoutDate: details.CheckoutDate,
		Status:       StatusIdle,
		Schedule:     DefaultSchedule(),
		CreatedAt:    params.Now.UTC(),
		UpdatedAt:    params.Now.UTC(),
	}
	// A URL that already carries a stay seeds the windows so the dashboard has rows to show.
	if !details.CheckinDate.IsZero() {
		search.Pricing = pricing.Generate(details.CheckinDate)
	}
	search.Record(SearchCreatedEvent{SearchID: search.ID, Name: search.Name, At: search.CreatedAt})
	return search, nil
}

// ChangeDetails validates user edits. Pricing and status are left alone.
func (s *Search) ChangeDetails(name, rawURL string, cleaningFee float64, now time.Time) (DetailsUpdate, error) {
	details, err := newDetails(name, rawURL, cleaningFee, now)
	if err != nil {
		return DetailsUpdate{}, err
	}
	s.Name = details.Name
	s.URL = details.URL
	s.CleaningFee = details.CleaningFee
	s.CheckinDate = details.CheckinDate
	s.CheckoutDate = details.CheckoutDate
	s.UpdatedAt = details.At
	s.Record(SearchUpdatedEvent{SearchID: s.ID, At: details.At})
	return details, nil
}

// BeginRefresh moves the search to running. Any state may start a refresh;
// guarding against overlapping refreshes is the caller's job.
func (s *Search) BeginRefresh(now time.Time) StatusUpdate {
	now = now.UTC()
	s.Status = StatusRunning
	s.LastRunAt = now
	s.LastError = ""
	s.UpdatedAt = now
	s.Record(RefreshStartedEvent{SearchID: s.ID, At: now})
	return StatusUpdate{Status: StatusRunning, LastRunAt: now, At: now}
}

func (s *Search) CompleteRefresh(now time.Time) (StatusUpdate, error) {
	if s.Status != StatusRunning {
		return StatusUpdate{}, ErrInvalidRefresh
	}
	now = now.UTC()
	s.Status = StatusCompleted
	s.UpdatedAt = now
	s.Record(RefreshCompletedEvent{
		SearchID: s.ID,
		Priced:   s.Pricing.Known(),
		Windows:  len(s.Pricing.Slots()),
		At:       now,
	})
	return StatusUpdate{Status: StatusCompleted, At: now}, nil
}

func (s *Search) FailRefresh(reason error, now time.Time) (StatusUpdate, error) {
	if s.Status != StatusRunning {
		return StatusUpdate{}, ErrInvalidRefresh
	}
	now = now.UTC()
	msg := "refresh failed"
	if reason != nil {
		msg = reason.Error()
	}
	s.Status = StatusError
	s.LastError = msg
	s.UpdatedAt = now
	s.Record(RefreshFailedEvent{SearchID: s.ID, Reason: msg, At: now})
	return StatusUpdate{Status: StatusError, LastError: msg, At: now}, nil
}

func (s *Search) ChangeSchedule(schedule Schedule, now time.Time) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	s.Schedule = schedule.Normalized()
	s.UpdatedAt = now.UTC()
	return nil
}

// MarkDeleted records the deletion event on a search that was just removed.
func (s *Search) MarkDeleted(now time.Time) {
	s.Record(SearchDeletedEvent{SearchID: s.ID, At: now.UTC()})
}

// Clone returns a deep copy without pending events.
func (s *Search) Clone() *Search {
	if s == nil {
		return nil
	}
	out := *s
	out.EventRecorder = events.EventRecorder{}
	out.Pricing = s.Pricing.Clone()
	out.Schedule = s.Schedule.Normalized()
	return &out
}

func newDetails(name, rawURL string, cleaningFee float64, now time.Time) (DetailsUpdate, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	if name == "" {
		return DetailsUpdate{}, ErrNameRequired
	}
	if rawURL == "" {
		return DetailsUpdate{}, ErrURLRequired
	}
	if cleaningFee < 0 || math.IsNaN(cleaningFee) || math.IsInf(cleaningFee, 0) {
		return DetailsUpdate{}, ErrNegativeFee
	}
	// Unparseable URLs are accepted; their refreshes will skip every window.
	parsed, _ := ParseListingURL(rawURL)
	return DetailsUpdate{
		Name:         name,
		URL:          rawURL,
		CleaningFee:  cleaningFee,
		CheckinDate:  parsed.Checkin,
		CheckoutDate: parsed.Checkout,
		At:           now.UTC(),
	}, nil
}
