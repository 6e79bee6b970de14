package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var ErrEmptyNotification = errors.New("notification title is required")

// NotificationFeed is the newest-first notification feed of one user.
type NotificationFeed struct {
	*FeedSubscriber
	repo    port.FeedRepository
	notices *NoticeBoard
	clock   clock.Clock
	userID  string
}

func NewNotificationFeed(repo port.FeedRepository, broker port.FeedBroker, notices *NoticeBoard, clk clock.Clock, userID string) *NotificationFeed {
	n := &NotificationFeed{
		repo:    repo,
		notices: notices,
		clock:   clk,
		userID:  userID,
	}
	n.FeedSubscriber = NewFeedSubscriber(repo, broker, notices, FeedConfig{
		Query: domain.FeedQuery{
			Feed:    domain.FeedNotifications,
			OwnerID: userID,
			Order:   domain.Descending,
		},
		Filter: domain.FeedFilter{
			Feed:   domain.FeedNotifications,
			Column: domain.ColumnUserID,
			Value:  userID,
		},
		Placement: Prepend,
		OnInsert: func(e domain.FeedEvent) {
			notices.Post(domain.NoticeInfo, e.Title, e.Content)
		},
	})
	return n
}

func (n *NotificationFeed) UserID() string {
	return n.userID
}

func (n *NotificationFeed) UnreadCount() int {
	count := 0
	for _, e := range n.Events() {
		if !e.IsRead {
			count++
		}
	}
	return count
}

// MarkAsRead patches the backend first and flips the local flag on success.
func (n *NotificationFeed) MarkAsRead(ctx context.Context, id string) error {
	if err := n.repo.MarkRead(ctx, domain.FeedNotifications, n.userID, id); err != nil {
		log.Error().Err(err).Str("notification_id", id).Msg("notifications: mark as read failed")
		return fmt.Errorf("mark notification read: %w", err)
	}
	n.markRead(map[string]bool{id: true})
	return nil
}

func (n *NotificationFeed) MarkAllAsRead(ctx context.Context) error {
	if err := n.repo.MarkAllRead(ctx, domain.FeedNotifications, n.userID); err != nil {
		log.Error().Err(err).Str("user_id", n.userID).Msg("notifications: mark all as read failed")
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	n.markRead(nil)
	return nil
}

// Create inserts a notification for the feed's own user. The row reaches
// the cache through the push subscription.
func (n *NotificationFeed) Create(ctx context.Context, title, message string) (domain.FeedEvent, error) {
	if strings.TrimSpace(title) == "" {
		return domain.FeedEvent{}, ErrEmptyNotification
	}
	return PostNotification(ctx, n.repo, n.clock.Now(), n.userID, title, message)
}

// PostNotification inserts a notification row for userID.
func PostNotification(ctx context.Context, repo port.FeedRepository, now time.Time, userID, title, message string) (domain.FeedEvent, error) {
	event, err := repo.InsertEvent(ctx, domain.FeedEvent{
		Feed:      domain.FeedNotifications,
		OwnerID:   userID,
		Title:     title,
		Content:   message,
		CreatedAt: now,
	})
	if err != nil {
		return domain.FeedEvent{}, fmt.Errorf("insert notification: %w", err)
	}
	return event, nil
}
