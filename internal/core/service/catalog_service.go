package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var ErrNotFound = errors.New("not found")

const catalogTTL = 10 * time.Minute

// CatalogService serves restaurants and menus through the cache. Concurrent
// misses for the same key share one database read.
type CatalogService struct {
	repo  port.CatalogRepository
	cache port.CacheRepository
	sfg   singleflight.Group
}

func NewCatalogService(repo port.CatalogRepository, cache port.CacheRepository) *CatalogService {
	return &CatalogService{repo: repo, cache: cache}
}

func (s *CatalogService) ListRestaurants(ctx context.Context, filter domain.RestaurantFilter) ([]domain.Restaurant, error) {
	filter.Cuisine = strings.ToLower(strings.TrimSpace(filter.Cuisine))
	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Cuisine == "all" {
		filter.Cuisine = ""
	}

	// Free text searches are not worth caching.
	if filter.Query != "" {
		return s.repo.ListRestaurants(ctx, filter)
	}

	return cached(ctx, s, "catalog:restaurants:"+filter.Cuisine, func() ([]domain.Restaurant, error) {
		return s.repo.ListRestaurants(ctx, filter)
	})
}

func (s *CatalogService) ListMenu(ctx context.Context, restaurantID string) (*domain.Restaurant, []domain.MenuItem, error) {
	restaurant, err := s.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, nil, fmt.Errorf("get restaurant: %w", err)
	}
	if restaurant == nil {
		return nil, nil, ErrNotFound
	}

	items, err := cached(ctx, s, "catalog:menu:"+restaurantID, func() ([]domain.MenuItem, error) {
		return s.repo.ListMenu(ctx, restaurantID)
	})
	if err != nil {
		return nil, nil, err
	}
	return restaurant, items, nil
}

func (s *CatalogService) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	item, err := cached(ctx, s, "catalog:item:"+id, func() (*domain.MenuItem, error) {
		return s.repo.GetMenuItem(ctx, id)
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	if item == nil {
		return domain.MenuItem{}, ErrNotFound
	}
	return *item, nil
}

// cached reads key from the cache or runs load. Cache errors are logged
// and fall through to load.
func cached[T any](ctx context.Context, s *CatalogService, key string, load func() (T, error)) (T, error) {
	var out T
	hit, err := s.cache.GetJSON(ctx, key, &out)
	if err == nil && hit {
		return out, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("catalog: cache get failed")
	}

	v, err, _ := s.sfg.Do(key, func() (any, error) {
		value, err := load()
		if err != nil {
			return nil, err
		}
		if errSet := s.cache.SetJSON(ctx, key, value, catalogTTL); errSet != nil {
			log.Warn().Err(errSet).Str("key", key).Msg("catalog: cache set failed")
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	return v.(T), nil
}
