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

// ChatThread is the conversation between a user and a driver: an oldest
// first feed plus the pipeline sending into it.
type ChatThread struct {
	*FeedSubscriber
	Pipeline *MessagePipeline

	repo     port.FeedRepository
	userID   string
	driverID string
}

func NewChatThread(repo port.FeedRepository, broker port.FeedBroker, notices *NoticeBoard, clk clock.Clock, userID, driverID string, retryDelay time.Duration) *ChatThread {
	feed := NewFeedSubscriber(repo, broker, notices, FeedConfig{
		Query: domain.FeedQuery{
			Feed:    domain.FeedMessages,
			OwnerID: userID,
			PeerID:  driverID,
			Order:   domain.Ascending,
		},
		Filter: domain.FeedFilter{
			Feed:   domain.FeedMessages,
			Column: domain.ColumnUserID,
			Value:  userID,
		},
		Placement: Append,
	})

	return &ChatThread{
		FeedSubscriber: feed,
		Pipeline: NewMessagePipeline(repo, feed, notices, clk, PipelineConfig{
			UserID:     userID,
			DriverID:   driverID,
			RetryDelay: retryDelay,
		}),
		repo:     repo,
		userID:   userID,
		driverID: driverID,
	}
}

func (c *ChatThread) UserID() string {
	return c.userID
}

func (c *ChatThread) DriverID() string {
	return c.driverID
}

// MarkAsRead patches the backend; failures are logged only.
func (c *ChatThread) MarkAsRead(ctx context.Context, id string) error {
	if err := c.repo.MarkRead(ctx, domain.FeedMessages, c.userID, id); err != nil {
		log.Error().Err(err).Str("message_id", id).Msg("chat: mark as read failed")
		return fmt.Errorf("mark message read: %w", err)
	}
	c.markRead(map[string]bool{id: true})
	return nil
}

// Close stops the retry timer and the push subscription.
func (c *ChatThread) Close() {
	c.Pipeline.Close()
	c.FeedSubscriber.Close()
}
