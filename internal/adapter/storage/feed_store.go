package storage

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

// FeedStore is the feed repository as seen by the application: every
// committed insert is announced on the broker, which makes MySQL plus Redis
// behave as one table with a change stream.
type FeedStore struct {
	port.FeedRepository
	broker port.FeedBroker
}

func NewFeedStore(repo port.FeedRepository, broker port.FeedBroker) *FeedStore {
	return &FeedStore{FeedRepository: repo, broker: broker}
}

// InsertEvent succeeds once the row is committed. A failed publish only
// delays delivery until subscribers refetch.
func (s *FeedStore) InsertEvent(ctx context.Context, event domain.FeedEvent) (domain.FeedEvent, error) {
	stored, err := s.FeedRepository.InsertEvent(ctx, event)
	if err != nil {
		return domain.FeedEvent{}, err
	}

	if err := s.broker.Publish(ctx, stored); err != nil {
		log.Warn().Err(err).Str("feed", string(stored.Feed)).Str("id", stored.ID).Msg("failed to publish feed insert")
	}
	return stored, nil
}
