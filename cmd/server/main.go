package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/food-flow/internal/adapter/assistant"
	"github.com/rl1809/food-flow/internal/adapter/handler"
	"github.com/rl1809/food-flow/internal/adapter/identity"
	"github.com/rl1809/food-flow/internal/adapter/storage"
	"github.com/rl1809/food-flow/internal/config"
	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/core/service"
	"github.com/rl1809/food-flow/internal/logging"
	"github.com/rl1809/food-flow/internal/port"
)

const (
	connectAttempts     = 10
	healthCheckInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logging.Setup("info", "console", "food-flow")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "food-flow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.New()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := waitFor(ctx, "mysql", db.PingContext); err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	if err := storage.Migrate(cfg.MySQL.DSN); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate mysql")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 100,
	})
	if err := waitFor(ctx, "redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}

	// Initialize adapters
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	broker := storage.NewRedisBroker(rdb)
	feeds := storage.NewFeedStore(mysqlAdapter, broker)
	identityClient := identity.NewClient(identity.Config{
		BaseURL:     cfg.Auth.URL,
		APIKey:      cfg.Auth.APIKey,
		RedirectURL: cfg.Auth.RedirectURL,
	}, clk)

	keyword := assistant.NewKeyword()
	keyword.Start()
	defer keyword.Stop()

	var completion port.Assistant = keyword
	if cfg.Assistant.URL != "" {
		completion = assistant.NewRemote(assistant.RemoteConfig{URL: cfg.Assistant.URL, APIKey: cfg.Assistant.APIKey})
		log.Info().Str("url", cfg.Assistant.URL).Msg("using remote assistant")
	}

	// Initialize services
	checkoutService := service.NewCheckoutService(redisAdapter, clk, cfg.Orders.QueueSize)
	catalogService := service.NewCatalogService(mysqlAdapter, redisAdapter)
	profileService := service.NewProfileService(mysqlAdapter, clk)

	workspaces := service.NewWorkspaceRegistry(cfg.Workspace.TTL,
		func(string) port.IdentityProvider { return identityClient.Connect() },
		service.WorkspaceDeps{
			Feeds:     feeds,
			Broker:    broker,
			Carts:     redisAdapter,
			Assistant: completion,
			Clock:     clk,
			Pricing: domain.Pricing{
				DeliveryFeeCents: cfg.Pricing.DeliveryFeeCents,
				TaxBasisPoints:   cfg.Pricing.TaxBasisPoints,
			},
			RetryDelay:   cfg.Workspace.MessageRetryDelay,
			StepInterval: cfg.Workspace.OrderStepInterval,
		})
	workspaces.Start()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Orders.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.NewOrderWorker(id, mysqlAdapter, feeds, clk).Run(checkoutService.GetOrderQueue())
		}(i)
	}
	log.Info().Int("workers", cfg.Orders.Workers).Msg("started order workers")

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(map[string]handler.Pinger{
		"mysql": mysqlAdapter,
		"redis": redisAdapter,
	}, clk)
	grpcHandler.Register(grpcServer)
	go grpcHandler.Run(ctx, healthCheckInterval)

	lis, err := net.Listen("tcp", ":"+cfg.App.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("port", cfg.App.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(handler.HTTPDeps{
		Workspaces:   workspaces,
		Catalog:      catalogService,
		Checkout:     checkoutService,
		Profiles:     profileService,
		Orders:       mysqlAdapter,
		Completion:   keyword,
		Health:       grpcHandler,
		Clock:        clk,
		CookieSecure: cfg.App.CookieSecure,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.HTTPPort,
		Handler:      httpHandler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	grpcHandler.Shutdown()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Close every workspace, then drain the order queue
	workspaces.Stop()
	checkoutService.Close()
	wg.Wait()
	log.Info().Msg("workers stopped")

	cancel()
	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}

// waitFor retries ping with exponential backoff while a dependency starts.
func waitFor(ctx context.Context, name string, ping func(context.Context) error) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := ping(pingCtx)
		cancel()
		if err == nil {
			log.Info().Str("dependency", name).Msg("connected")
			return nil
		}

		attempt := int(b.Attempt()) + 1
		if attempt >= connectAttempts {
			return fmt.Errorf("%s unreachable after %d attempts: %w", name, attempt, err)
		}

		wait := b.Duration()
		log.Warn().Err(err).Str("dependency", name).Int("attempt", attempt).Dur("retry_in", wait).Msg("dependency not ready")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
