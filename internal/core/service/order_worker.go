package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

const orderWriteTimeout = 5 * time.Second

// OrderWorker persists queued orders and tells the user how it went
// through their notification feed.
type OrderWorker struct {
	id     int
	orders port.OrderRepository
	feeds  port.FeedRepository
	clock  clock.Clock
}

func NewOrderWorker(id int, orders port.OrderRepository, feeds port.FeedRepository, clk clock.Clock) *OrderWorker {
	return &OrderWorker{id: id, orders: orders, feeds: feeds, clock: clk}
}

// Run drains queue until it is closed.
func (w *OrderWorker) Run(queue <-chan domain.Order) {
	for order := range queue {
		w.handle(order)
	}
}

func (w *OrderWorker) handle(order domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), orderWriteTimeout)
	defer cancel()

	logger := log.With().Int("worker", w.id).Str("order_id", order.ID).Logger()

	order.Status = domain.OrderStatusConfirmed
	if err := w.orders.CreateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to save order")
		w.notify(ctx, order.UserID, "Order could not be recorded",
			"We couldn't save your order. Please contact support if you were charged.")
		return
	}

	logger.Info().Int64("total_cents", order.TotalCents).Msg("saved order")
	w.notify(ctx, order.UserID, "Your order has been placed!",
		fmt.Sprintf("Order %s for %s is being prepared.", shortID(order.ID), domain.FormatCents(order.TotalCents)))
}

func (w *OrderWorker) notify(ctx context.Context, userID, title, message string) {
	if _, err := PostNotification(ctx, w.feeds, w.clock.Now(), userID, title, message); err != nil {
		log.Warn().Err(err).Int("worker", w.id).Str("user_id", userID).Msg("failed to post order notification")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}
