package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

const (
	DefaultRetryDelay = 3 * time.Second
	sendTimeout       = 10 * time.Second
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrPipelineClosed = errors.New("message pipeline closed")
)

// MessagePipeline sends chat messages for one thread. A confirmed message
// is merged into the thread's feed; a failed one is kept in the failed list
// for manual retry and gets exactly one automatic retry after retryDelay,
// started only while no other send is in flight.
//
// A manual retry may race the automatic retry of the same message. If both
// succeed the backend stores two rows and both are shown; this is accepted.
type MessagePipeline struct {
	repo       port.FeedRepository
	feed       *FeedSubscriber
	notices    *NoticeBoard
	clock      clock.Clock
	retryDelay time.Duration
	userID     string
	driverID   string

	mu       sync.Mutex
	inFlight int
	failed   []domain.PendingMessage
	timer    *clock.Timer
	timerGen int
	closed   bool
}

type PipelineConfig struct {
	UserID     string
	DriverID   string
	RetryDelay time.Duration
}

func NewMessagePipeline(repo port.FeedRepository, feed *FeedSubscriber, notices *NoticeBoard, clk clock.Clock, cfg PipelineConfig) *MessagePipeline {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &MessagePipeline{
		repo:       repo,
		feed:       feed,
		notices:    notices,
		clock:      clk,
		retryDelay: cfg.RetryDelay,
		userID:     cfg.UserID,
		driverID:   cfg.DriverID,
	}
}

// Send dispatches content. Blank content is rejected without contacting the
// backend and is not queued for retry.
func (p *MessagePipeline) Send(ctx context.Context, content string) domain.SendResult {
	if isBlank(content) {
		return domain.SendResult{State: domain.SendFailed, Reason: ErrEmptyMessage}
	}

	result := p.dispatch(ctx, content)
	if result.State == domain.SendFailed && !errors.Is(result.Reason, ErrPipelineClosed) {
		p.mu.Lock()
		p.failed = append(p.failed, domain.PendingMessage{
			ID:       uuid.NewString(),
			Content:  content,
			State:    domain.SendFailed,
			Attempts: 1,
			FailedAt: p.clock.Now(),
		})
		p.mu.Unlock()

		p.notices.PostWithAction(domain.NoticeError, "Message failed to send", "We'll retry automatically", "retry")
	}

	p.scheduleAutoRetry()
	return result
}

// Retry re-sends a failed message. On success the message leaves the failed
// list; content that is not in the list is sent as a new message.
func (p *MessagePipeline) Retry(ctx context.Context, content string) domain.SendResult {
	if isBlank(content) {
		return domain.SendResult{State: domain.SendFailed, Reason: ErrEmptyMessage}
	}

	p.mu.Lock()
	i := p.indexOfContentLocked(content)
	if i < 0 {
		p.mu.Unlock()
		return p.Send(ctx, content)
	}
	p.failed[i].Attempts++
	p.failed[i].State = domain.SendPending
	id := p.failed[i].ID
	p.mu.Unlock()

	result := p.dispatch(ctx, content)
	p.settle(id, result)
	p.scheduleAutoRetry()
	return result
}

// Discard drops a failed message without sending it.
func (p *MessagePipeline) Discard(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.failed {
		if p.failed[i].ID == id {
			p.failed = append(p.failed[:i], p.failed[i+1:]...)
			if p.nextAutoRetryLocked() < 0 {
				p.stopTimerLocked()
			}
			return true
		}
	}
	return false
}

func (p *MessagePipeline) dispatch(ctx context.Context, content string) domain.SendResult {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.SendResult{State: domain.SendFailed, Reason: ErrPipelineClosed}
	}
	p.inFlight++
	p.stopTimerLocked()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	event, err := p.repo.InsertEvent(ctx, domain.FeedEvent{
		Feed:      domain.FeedMessages,
		OwnerID:   p.userID,
		PeerID:    p.driverID,
		Content:   content,
		CreatedAt: p.clock.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("driver_id", p.driverID).Msg("chat: send failed")
		return domain.SendResult{State: domain.SendFailed, Reason: err}
	}

	// The push echo of this row carries the same id and is dropped.
	p.feed.Ingest(event)
	return domain.SendResult{State: domain.SendConfirmed, Message: event}
}

func (p *MessagePipeline) settle(id string, result domain.SendResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.failed {
		if p.failed[i].ID != id {
			continue
		}
		if result.State == domain.SendConfirmed {
			p.failed = append(p.failed[:i], p.failed[i+1:]...)
		} else {
			p.failed[i].State = domain.SendFailed
			p.failed[i].FailedAt = p.clock.Now()
		}
		return
	}
}

func (p *MessagePipeline) scheduleAutoRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.timer != nil || p.inFlight > 0 || p.nextAutoRetryLocked() < 0 {
		return
	}
	p.timerGen++
	gen := p.timerGen
	p.timer = p.clock.AfterFunc(p.retryDelay, func() { p.autoRetry(gen) })
}

func (p *MessagePipeline) autoRetry(gen int) {
	p.mu.Lock()
	if gen != p.timerGen {
		// Stopped or replaced after it had already fired.
		p.mu.Unlock()
		return
	}
	p.timer = nil
	// A send that is still in flight reschedules when it finishes.
	if p.closed || p.inFlight > 0 {
		p.mu.Unlock()
		return
	}
	i := p.nextAutoRetryLocked()
	if i < 0 {
		p.mu.Unlock()
		return
	}
	p.failed[i].AutoRetried = true
	p.failed[i].Attempts++
	p.failed[i].State = domain.SendPending
	pending := p.failed[i]
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	result := p.dispatch(ctx, pending.Content)
	p.settle(pending.ID, result)
	if result.State == domain.SendConfirmed {
		log.Info().Str("driver_id", p.driverID).Msg("chat: automatic retry delivered message")
	}
	p.scheduleAutoRetry()
}

func (p *MessagePipeline) nextAutoRetryLocked() int {
	for i, m := range p.failed {
		if !m.AutoRetried && m.State == domain.SendFailed {
			return i
		}
	}
	return -1
}

func (p *MessagePipeline) indexOfContentLocked(content string) int {
	for i, m := range p.failed {
		if m.Content == content {
			return i
		}
	}
	return -1
}

func (p *MessagePipeline) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
		p.timerGen++
	}
}

// Failed returns the messages waiting for a retry, oldest first.
func (p *MessagePipeline) Failed() []domain.PendingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.PendingMessage, len(p.failed))
	copy(out, p.failed)
	return out
}

func (p *MessagePipeline) Sending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight > 0
}

// RetryScheduled reports whether the automatic retry timer is armed.
func (p *MessagePipeline) RetryScheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Close cancels the automatic retry timer. Failed messages are dropped.
func (p *MessagePipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.stopTimerLocked()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
