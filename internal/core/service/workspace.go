package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var (
	ErrMissingDriver   = errors.New("driver id is required")
	ErrWorkspaceClosed = errors.New("workspace closed")
	ErrMissingOrder    = errors.New("order id is required")
)

// WorkspaceDeps are the shared collaborators every workspace is built from.
type WorkspaceDeps struct {
	Feeds          port.FeedRepository
	Broker         port.FeedBroker
	Carts          port.CartStorage
	Assistant      port.Assistant
	Clock          clock.Clock
	Pricing        domain.Pricing
	RetryDelay     time.Duration
	StepInterval   time.Duration
	NoticeCapacity int
}

// Workspace holds the state of one client: its cart, its session gate and
// the feeds, pipelines and simulators opened on its behalf. Feeds belong to
// the signed-in user and are torn down as soon as the identity changes.
type Workspace struct {
	ID        string
	Cart      *CartStore
	Gate      *SessionGate
	Notices   *NoticeBoard
	Assistant *AssistantChat

	deps WorkspaceDeps

	mu            sync.Mutex
	userID        string
	notifications *NotificationFeed
	chats         map[string]*ChatThread
	tracking      map[string]*OrderProgressSimulator
	closed        bool
}

func NewWorkspace(ctx context.Context, id string, provider port.IdentityProvider, deps WorkspaceDeps) *Workspace {
	notices := NewNoticeBoard(deps.Clock, deps.NoticeCapacity)
	w := &Workspace{
		ID:        id,
		Cart:      NewCartStore(ctx, deps.Carts, id, deps.Pricing),
		Notices:   notices,
		Assistant: NewAssistantChat(deps.Assistant, notices, deps.Clock),
		deps:      deps,
		chats:     make(map[string]*ChatThread),
		tracking:  make(map[string]*OrderProgressSimulator),
	}
	w.Gate = NewSessionGate(ctx, provider)
	w.Gate.OnChange(w.onSessionChange)
	w.onSessionChange(w.Gate.Session())
	return w
}

func (w *Workspace) onSessionChange(session domain.Session) {
	userID := session.UserID()

	w.mu.Lock()
	if userID == w.userID {
		w.mu.Unlock()
		return
	}
	previous := w.userID
	w.userID = userID
	notifications, chats := w.detachFeedsLocked()
	w.mu.Unlock()

	closeFeeds(notifications, chats)
	log.Debug().Str("workspace", w.ID).Str("from", previous).Str("to", userID).Msg("workspace: user changed")
}

func (w *Workspace) detachFeedsLocked() (*NotificationFeed, []*ChatThread) {
	notifications := w.notifications
	w.notifications = nil

	chats := make([]*ChatThread, 0, len(w.chats))
	for driverID, c := range w.chats {
		chats = append(chats, c)
		delete(w.chats, driverID)
	}
	return notifications, chats
}

func closeFeeds(notifications *NotificationFeed, chats []*ChatThread) {
	if notifications != nil {
		notifications.Close()
	}
	for _, c := range chats {
		c.Close()
	}
}

// Identity returns the signed-in identity, or nil.
func (w *Workspace) Identity() *domain.Identity {
	return w.Gate.Session().Identity
}

// Notifications returns the notification feed of the signed-in user,
// opening it on first use.
func (w *Workspace) Notifications(ctx context.Context) (*NotificationFeed, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWorkspaceClosed
	}
	if w.userID == "" {
		w.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	if w.notifications != nil {
		feed := w.notifications
		w.mu.Unlock()
		return feed, nil
	}
	userID := w.userID
	w.mu.Unlock()

	feed := NewNotificationFeed(w.deps.Feeds, w.deps.Broker, w.Notices, w.deps.Clock, userID)
	if err := feed.Open(ctx); err != nil {
		feed.Close()
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Lost a race with another opener or with a user change.
	if w.closed || w.userID != userID || w.notifications != nil {
		current := w.notifications
		feed.Close()
		if current == nil {
			return nil, ErrNotSignedIn
		}
		return current, nil
	}
	w.notifications = feed
	return feed, nil
}

// Chat returns the thread with driverID for the signed-in user, opening it
// on first use.
func (w *Workspace) Chat(ctx context.Context, driverID string) (*ChatThread, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, ErrMissingDriver
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWorkspaceClosed
	}
	if w.userID == "" {
		w.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	if c, ok := w.chats[driverID]; ok {
		w.mu.Unlock()
		return c, nil
	}
	userID := w.userID
	w.mu.Unlock()

	thread := NewChatThread(w.deps.Feeds, w.deps.Broker, w.Notices, w.deps.Clock, userID, driverID, w.deps.RetryDelay)
	if err := thread.Open(ctx); err != nil {
		thread.Close()
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.chats[driverID]; ok && w.userID == userID {
		thread.Close()
		return current, nil
	}
	if w.closed || w.userID != userID {
		thread.Close()
		return nil, ErrNotSignedIn
	}
	w.chats[driverID] = thread
	return thread, nil
}

// TrackOrder returns the simulated progress of orderID, starting a
// simulator the first time the order is tracked.
func (w *Workspace) TrackOrder(orderID string, placedAt time.Time) (domain.OrderProgress, error) {
	if orderID == "" {
		return domain.OrderProgress{}, ErrMissingOrder
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return domain.OrderProgress{}, ErrWorkspaceClosed
	}

	sim, ok := w.tracking[orderID]
	if !ok {
		sim = NewOrderProgressSimulator(w.deps.Clock, w.deps.StepInterval, orderID, domain.DeliverySteps(placedAt),
			func(p domain.OrderProgress) {
				log.Debug().Str("order_id", p.OrderID).Str("step", p.Current().Title).Msg("workspace: order progressed")
			})
		w.tracking[orderID] = sim
		sim.Start()
	}
	return sim.Progress(), nil
}

// Close tears down every subscription, timer and listener of the workspace.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	notifications, chats := w.detachFeedsLocked()
	sims := make([]*OrderProgressSimulator, 0, len(w.tracking))
	for _, s := range w.tracking {
		sims = append(sims, s)
	}
	w.mu.Unlock()

	w.Gate.Close()
	closeFeeds(notifications, chats)
	for _, s := range sims {
		s.Stop()
	}
}
