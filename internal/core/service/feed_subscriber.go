package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var ErrFeedClosed = errors.New("feed closed")

// Placement decides where a pushed event lands in the cache.
type Placement int

const (
	// Append keeps the cache oldest first (chat).
	Append Placement = iota
	// Prepend keeps the cache newest first (notifications).
	Prepend
)

type FeedConfig struct {
	Query     domain.FeedQuery
	Filter    domain.FeedFilter
	Placement Placement
	// OnInsert runs for every pushed event that was not already cached.
	OnInsert func(domain.FeedEvent)
}

// FeedSubscriber keeps a local, ordered, duplicate-free copy of one feed in
// sync with the backend's push stream.
type FeedSubscriber struct {
	repo    port.FeedRepository
	broker  port.FeedBroker
	notices *NoticeBoard
	cfg     FeedConfig

	mu     sync.Mutex
	events []domain.FeedEvent
	seen   map[string]bool
	cancel port.CancelFunc
	closed bool
}

func NewFeedSubscriber(repo port.FeedRepository, broker port.FeedBroker, notices *NoticeBoard, cfg FeedConfig) *FeedSubscriber {
	return &FeedSubscriber{
		repo:    repo,
		broker:  broker,
		notices: notices,
		cfg:     cfg,
		seen:    make(map[string]bool),
	}
}

// Open starts the push subscription and runs the bulk fetch. A failed fetch
// is reported as a warning and leaves the subscription running; only a
// failed subscribe is returned as an error.
func (f *FeedSubscriber) Open(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	alreadyOpen := f.cancel != nil
	f.mu.Unlock()

	if !alreadyOpen {
		// Subscribe before fetching so nothing inserted in between is lost.
		cancel, err := f.broker.Subscribe(ctx, f.cfg.Filter, f.Ingest)
		if err != nil {
			f.warn("Realtime updates unavailable", err)
			return fmt.Errorf("subscribe %s: %w", f.cfg.Filter.Channel(), err)
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			cancel()
			return ErrFeedClosed
		}
		if f.cancel != nil {
			// Lost a race with a concurrent Open.
			f.mu.Unlock()
			cancel()
		} else {
			f.cancel = cancel
			f.mu.Unlock()
		}
	}

	f.Refresh(ctx)
	return nil
}

// Refresh re-runs the bulk fetch. On error the previous cache is kept.
func (f *FeedSubscriber) Refresh(ctx context.Context) bool {
	rows, err := f.repo.ListEvents(ctx, f.cfg.Query)
	if err != nil {
		f.warn(fmt.Sprintf("Failed to load %s", f.cfg.Query.Feed), err)
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	fetched := make(map[string]bool, len(rows))
	merged := make([]domain.FeedEvent, 0, len(rows)+len(f.events))
	for _, r := range rows {
		if fetched[r.ID] {
			continue
		}
		fetched[r.ID] = true
		merged = append(merged, r)
	}

	// Events pushed while the fetch was running are not in its result yet.
	// They are already in cache order and go in as one block.
	var pushed []domain.FeedEvent
	for _, e := range f.events {
		if fetched[e.ID] {
			continue
		}
		fetched[e.ID] = true
		pushed = append(pushed, e)
	}
	if f.cfg.Placement == Prepend {
		merged = append(pushed, merged...)
	} else {
		merged = append(merged, pushed...)
	}

	f.events = merged
	f.seen = fetched
	return true
}

func (f *FeedSubscriber) place(events []domain.FeedEvent, e domain.FeedEvent) []domain.FeedEvent {
	if f.cfg.Placement == Prepend {
		return append([]domain.FeedEvent{e}, events...)
	}
	return append(events, e)
}

// Ingest merges one event into the cache. Duplicate ids and events of
// another feed instance are dropped. It is the push subscription callback
// and also receives optimistic results of local writes.
func (f *FeedSubscriber) Ingest(e domain.FeedEvent) {
	if !f.cfg.Query.Includes(e) {
		return
	}

	f.mu.Lock()
	if f.closed || f.seen[e.ID] {
		f.mu.Unlock()
		return
	}
	f.seen[e.ID] = true
	f.events = f.place(f.events, e)
	f.mu.Unlock()

	if f.cfg.OnInsert != nil {
		f.cfg.OnInsert(e)
	}
}

func (f *FeedSubscriber) Events() []domain.FeedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.FeedEvent, len(f.events))
	copy(out, f.events)
	return out
}

// markRead flips the local is_read flag. ids nil means every event.
func (f *FeedSubscriber) markRead(ids map[string]bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := 0
	for i := range f.events {
		if f.events[i].IsRead || (ids != nil && !ids[f.events[i].ID]) {
			continue
		}
		f.events[i].IsRead = true
		changed++
	}
	return changed
}

// Close tears the push subscription down. Safe to call more than once.
func (f *FeedSubscriber) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (f *FeedSubscriber) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FeedSubscriber) warn(title string, err error) {
	log.Warn().Err(err).Str("feed", string(f.cfg.Query.Feed)).Msg(title)
	if f.notices != nil {
		f.notices.Post(domain.NoticeWarning, title, err.Error())
	}
}
