package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNotSignedIn      = errors.New("sign in required")
	ErrQueueFull        = errors.New("order queue unavailable")
)

const (
	defaultPaymentMethod = "card"
	releaseTimeout       = 2 * time.Second
)

// CheckoutService turns a cart into an order. Orders are persisted
// asynchronously by the workers draining OrderQueue.
type CheckoutService struct {
	cache      port.CacheRepository
	clock      clock.Clock
	orderQueue chan domain.Order

	// mu guards closed; senders hold it for reading so Close never races a send.
	mu     sync.RWMutex
	closed bool
}

func NewCheckoutService(cache port.CacheRepository, clk clock.Clock, queueSize int) *CheckoutService {
	return &CheckoutService{
		cache:      cache,
		clock:      clk,
		orderQueue: make(chan domain.Order, queueSize),
	}
}

// PlaceOrder builds an order from the cart, queues it and clears the cart.
// requestID makes retries of the same submission idempotent. When the order
// cannot be queued the cart lines are put back and the request id is freed
// for a retry.
func (s *CheckoutService) PlaceOrder(ctx context.Context, requestID string, identity *domain.Identity, cart *CartStore, paymentMethod string) (domain.Order, error) {
	if identity == nil {
		return domain.Order{}, ErrNotSignedIn
	}
	if cart.Snapshot().IsEmpty() {
		return domain.Order{}, ErrEmptyCart
	}

	var idempotencyKey string
	if requestID != "" {
		idempotencyKey = fmt.Sprintf("checkout:%s:%s", identity.UserID, requestID)
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, ErrDuplicateRequest
		}
	}

	snapshot := cart.Take(ctx)
	if snapshot.IsEmpty() {
		// Emptied by a concurrent request after the first check.
		s.release(ctx, idempotencyKey)
		return domain.Order{}, ErrEmptyCart
	}

	if paymentMethod == "" {
		paymentMethod = defaultPaymentMethod
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:               uuid.NewString(),
		UserID:           identity.UserID,
		Lines:            snapshot.Lines,
		SubtotalCents:    snapshot.SubtotalCents,
		DeliveryFeeCents: snapshot.DeliveryFeeCents,
		TaxCents:         snapshot.TaxCents,
		TotalCents:       snapshot.TotalCents,
		PaymentMethod:    paymentMethod,
		Status:           domain.OrderStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.enqueue(ctx, order); err != nil {
		cart.Restore(ctx, snapshot.Lines)
		s.release(ctx, idempotencyKey)
		return domain.Order{}, err
	}
	return order, nil
}

func (s *CheckoutService) enqueue(ctx context.Context, order domain.Order) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("%w: shutting down", ErrQueueFull)
	}
	select {
	case s.orderQueue <- order:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

// release frees an idempotency key whose order never reached the queue.
func (s *CheckoutService) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	// The request context may already be done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.cache.ReleaseIdempotency(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("checkout: failed to release idempotency key")
	}
}

func (s *CheckoutService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

// Close stops accepting orders and closes the queue. Safe to call more than once.
func (s *CheckoutService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.orderQueue)
}
