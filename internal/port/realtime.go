package port

import (
	"context"

	"github.com/rl1809/food-flow/internal/core/domain"
)

// CancelFunc tears a subscription down. It must be called exactly once;
// implementations tolerate extra calls.
type CancelFunc func()

type FeedBroker interface {
	// Subscribe delivers every INSERT matching filter to onEvent, in arrival
	// order, until the returned CancelFunc is called
	Subscribe(ctx context.Context, filter domain.FeedFilter, onEvent func(domain.FeedEvent)) (CancelFunc, error)

	// Publish announces an inserted row to every matching subscriber
	Publish(ctx context.Context, event domain.FeedEvent) error
}
