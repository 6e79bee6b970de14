package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

// RedisBroker carries feed INSERT events over Redis Pub/Sub. Each
// subscription owns one PubSub connection on the filter's channel.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, event domain.FeedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	for _, filter := range domain.FiltersFor(event) {
		if err := b.client.Publish(ctx, filter.Channel(), payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", filter.Channel(), err)
		}
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning, so
// anything published afterwards is delivered. onEvent runs on a single
// goroutine in arrival order.
func (b *RedisBroker) Subscribe(ctx context.Context, filter domain.FeedFilter, onEvent func(domain.FeedEvent)) (port.CancelFunc, error) {
	channel := filter.Channel()
	pubsub := b.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var event domain.FeedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("broker: dropping malformed event")
				continue
			}
			if !filter.Matches(event) {
				continue
			}
			onEvent(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("broker: close subscription")
			}
			<-done
		})
	}, nil
}
