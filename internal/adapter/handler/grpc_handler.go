package handler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCHandler serves the standard gRPC health service. Each dependency is
// reported under its own service name and the empty name carries the
// overall status.
type GRPCHandler struct {
	health *health.Server
	checks map[string]Pinger
	clock  clock.Clock

	mu      sync.RWMutex
	last    map[string]error
	checked bool
}

func NewGRPCHandler(checks map[string]Pinger, clk clock.Clock) *GRPCHandler {
	return &GRPCHandler{
		health: health.NewServer(),
		checks: checks,
		clock:  clk,
		last:   make(map[string]error),
	}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Check pings every dependency concurrently and publishes the result.
func (h *GRPCHandler) Check(ctx context.Context) map[string]error {
	results := make(map[string]error, len(h.checks))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for name, p := range h.checks {
		name, p := name, p
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			err := p.Ping(pingCtx)

			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := healthpb.HealthCheckResponse_SERVING
	for name, err := range results {
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
		}
		h.health.SetServingStatus(name, status)
	}
	h.health.SetServingStatus("", overall)

	h.mu.Lock()
	h.last = results
	h.checked = true
	h.mu.Unlock()
	return results
}

// Last returns the outcome of the most recent Check. ok is false until the
// first Check completed.
func (h *GRPCHandler) Last() (results map[string]error, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]error, len(h.last))
	for k, v := range h.last {
		out[k] = v
	}
	return out, h.checked
}

// Run checks immediately and then every interval until ctx is done.
func (h *GRPCHandler) Run(ctx context.Context, interval time.Duration) {
	h.Check(ctx)

	ticker := h.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown marks every service as not serving so clients drain away.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
