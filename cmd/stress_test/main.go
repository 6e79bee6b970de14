package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/adapter/storage"
	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/core/service"
	"github.com/rl1809/food-flow/internal/logging"
)

const (
	redisAddr     = "localhost:6379"
	cartKey       = "stress-test-workspace"
	totalRequests = 200
)

var item = domain.MenuItem{
	ID:           "101",
	RestaurantID: "1",
	Name:         "Margherita Pizza",
	PriceCents:   1299,
}

func main() {
	logging.Setup("info", "console", "stress-test")
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "cart:"+cartKey)

	redisAdapter := storage.NewRedisAdapter(rdb)
	cart := service.NewCartStore(ctx, redisAdapter, cartKey, domain.DefaultPricing)

	// Spawn concurrent adds of the same item
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart.AddItem(ctx, item)
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	snap := cart.Snapshot()
	reloaded := service.NewCartStore(ctx, redisAdapter, cartKey, domain.DefaultPricing).Snapshot()
	expectedTotal := item.PriceCents*totalRequests + domain.DefaultPricing.DeliveryFeeCents

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Lines:            %d\n", len(snap.Lines))
	fmt.Printf("Item Count:       %d\n", snap.ItemCount)
	fmt.Printf("Total:            %s\n", domain.FormatCents(snap.TotalCents))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if len(snap.Lines) == 1 && snap.ItemCount == totalRequests && snap.TotalCents == expectedTotal {
		fmt.Printf("PASS: One line with quantity %d\n", totalRequests)
	} else {
		fmt.Printf("FAIL: Expected 1 line x%d totalling %s, got %d lines x%d totalling %s\n",
			totalRequests, domain.FormatCents(expectedTotal),
			len(snap.Lines), snap.ItemCount, domain.FormatCents(snap.TotalCents))
	}

	// Verify the persisted snapshot matches memory
	if reloaded.ItemCount == snap.ItemCount && reloaded.TotalCents == snap.TotalCents {
		fmt.Println("PASS: Redis snapshot matches memory")
	} else {
		fmt.Printf("FAIL: Redis snapshot has %d items, memory has %d\n", reloaded.ItemCount, snap.ItemCount)
	}
}
