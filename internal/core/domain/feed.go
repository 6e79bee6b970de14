package domain

import (
	"fmt"
	"time"
)

// FeedName is the backing table of a feed.
type FeedName string

const (
	FeedMessages      FeedName = "messages"
	FeedNotifications FeedName = "notifications"
)

// FeedEvent is a chat message or a notification. OwnerID is the user the
// row belongs to; PeerID is the driver on the other end of a chat thread.
type FeedEvent struct {
	ID        string    `json:"id"`
	Feed      FeedName  `json:"feed"`
	OwnerID   string    `json:"user_id"`
	PeerID    string    `json:"driver_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// FeedQuery selects rows of a feed: user_id equals OwnerID and, when PeerID
// is set, driver_id equals PeerID. A chat thread is keyed by the pair.
type FeedQuery struct {
	Feed    FeedName
	OwnerID string
	PeerID  string
	Order   SortOrder
	Limit   int
}

// Includes reports whether e belongs to the feed instance q selects.
func (q FeedQuery) Includes(e FeedEvent) bool {
	if e.Feed != q.Feed || e.OwnerID != q.OwnerID {
		return false
	}
	return q.PeerID == "" || e.PeerID == q.PeerID
}

const (
	ColumnUserID   = "user_id"
	ColumnDriverID = "driver_id"
)

// FeedFilter selects the INSERT events a push subscription receives.
type FeedFilter struct {
	Feed   FeedName
	Column string
	Value  string
}

func (f FeedFilter) Channel() string {
	return fmt.Sprintf("feed:%s:INSERT:%s=eq.%s", f.Feed, f.Column, f.Value)
}

func (f FeedFilter) Matches(e FeedEvent) bool {
	if e.Feed != f.Feed {
		return false
	}
	switch f.Column {
	case ColumnUserID:
		return e.OwnerID == f.Value
	case ColumnDriverID:
		return e.PeerID == f.Value
	}
	return false
}

// FiltersFor lists every filter an inserted event is delivered to.
func FiltersFor(e FeedEvent) []FeedFilter {
	filters := []FeedFilter{{Feed: e.Feed, Column: ColumnUserID, Value: e.OwnerID}}
	if e.PeerID != "" {
		filters = append(filters, FeedFilter{Feed: e.Feed, Column: ColumnDriverID, Value: e.PeerID})
	}
	return filters
}
