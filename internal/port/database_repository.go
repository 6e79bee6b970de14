package port

import (
	"context"

	"github.com/rl1809/food-flow/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists an order together with its lines
	CreateOrder(ctx context.Context, order domain.Order) error

	// ListOrders returns the orders of a user, newest first
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
}

type FeedRepository interface {
	// ListEvents runs the bulk fetch of a feed
	ListEvents(ctx context.Context, q domain.FeedQuery) ([]domain.FeedEvent, error)

	// InsertEvent stores a new row and returns it as confirmed by the backend
	InsertEvent(ctx context.Context, event domain.FeedEvent) (domain.FeedEvent, error)

	// MarkRead patches is_read on a single row owned by ownerID
	MarkRead(ctx context.Context, feed domain.FeedName, ownerID, id string) error

	// MarkAllRead patches is_read on every unread row of a user
	MarkAllRead(ctx context.Context, feed domain.FeedName, ownerID string) error
}

type ProfileRepository interface {
	// GetProfile returns nil when the user has no profile yet
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	UpsertProfile(ctx context.Context, profile domain.Profile) error
}

type CatalogRepository interface {
	ListRestaurants(ctx context.Context, filter domain.RestaurantFilter) ([]domain.Restaurant, error)

	// GetRestaurant returns nil when the restaurant does not exist
	GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error)

	ListMenu(ctx context.Context, restaurantID string) ([]domain.MenuItem, error)

	// GetMenuItem returns nil when the item does not exist
	GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error)
}
