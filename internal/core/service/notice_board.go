package service

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/rl1809/food-flow/internal/core/domain"
)

const defaultNoticeCapacity = 20

// NoticeBoard keeps the most recent transient notices of one client until
// they are drained. Oldest notices are dropped when full.
type NoticeBoard struct {
	mu       sync.Mutex
	clock    clock.Clock
	capacity int
	notices  []domain.Notice
}

func NewNoticeBoard(clk clock.Clock, capacity int) *NoticeBoard {
	if capacity <= 0 {
		capacity = defaultNoticeCapacity
	}
	return &NoticeBoard{clock: clk, capacity: capacity}
}

func (b *NoticeBoard) Post(level domain.NoticeLevel, title, description string) {
	b.post(domain.Notice{Level: level, Title: title, Description: description})
}

// PostWithAction posts a notice carrying an affordance such as "retry".
func (b *NoticeBoard) PostWithAction(level domain.NoticeLevel, title, description, action string) {
	b.post(domain.Notice{Level: level, Title: title, Description: description, Action: action})
}

func (b *NoticeBoard) post(n domain.Notice) {
	n.CreatedAt = b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.capacity; over > 0 {
		b.notices = append([]domain.Notice(nil), b.notices[over:]...)
	}
}

// Drain returns pending notices oldest first and forgets them.
func (b *NoticeBoard) Drain() []domain.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.notices
	b.notices = nil
	if out == nil {
		return []domain.Notice{}
	}
	return out
}

func (b *NoticeBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notices)
}
