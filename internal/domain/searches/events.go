package searches

import "time"

type SearchCreatedEvent struct {
	SearchID SearchID  `json:"search_id"`
	Name     string    `json:"name"`
	At       time.Time `json:"at"`
}

func (e SearchCreatedEvent) EventName() string     { return "search.created" }
func (e SearchCreatedEvent) AggregateID() string   { return string(e.SearchID) }
func (e SearchCreatedEvent) OccurredAt() time.Time { return e.At }

type SearchUpdatedEvent struct {
	SearchID SearchID  `json:"search_id"`
	At       time.Time `json:"at"`
}

func (e SearchUpdatedEvent) EventName() string     { return "search.updated" }
func (e SearchUpdatedEvent) AggregateID() string   { return string(e.SearchID) }
func (e SearchUpdatedEvent) OccurredAt() time.Time { return e.At }

type SearchDeletedEvent struct {
	SearchID SearchID  `json:"search_id"`
	At       time.Time `json:"at"`
}

func (e SearchDeletedEvent) EventName() string     { return "search.deleted" }
func (e SearchDeletedEvent) AggregateID() string   { return string(e.SearchID) }
func (e SearchDeletedEvent) OccurredAt() time.Time { return e.At }

type RefreshStartedEvent struct {
	SearchID SearchID  `json:"search_id"`
	At       time.Time `json:"at"`
}

func (e RefreshStartedEvent) EventName() string     { return "search.refresh.started" }
func (e RefreshStartedEvent) AggregateID() string   { return string(e.SearchID) }
func (e RefreshStartedEvent) OccurredAt() time.Time { return e.At }

type RefreshCompletedEvent struct {
	SearchID SearchID  `json:"search_id"`
	Priced   int       `json:"priced"`
	Windows  int       `json:"windows"`
	At       time.Time `json:"at"`
}

func (e RefreshCompletedEvent) EventName() string     { return "search.refresh.completed" }
func (e RefreshCompletedEvent) AggregateID() string   { return string(e.SearchID) }
func (e RefreshCompletedEvent) OccurredAt() time.Time { return e.At }

type RefreshFailedEvent struct {
	SearchID SearchID  `json:"search_id"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

func (e RefreshFailedEvent) EventName() string     { return "search.refresh.failed" }
func (e RefreshFailedEvent) AggregateID() string   { return string(e.SearchID) }
func (e RefreshFailedEvent) OccurredAt() time.Time { return e.At }
