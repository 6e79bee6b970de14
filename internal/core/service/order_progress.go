package service

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rl1809/food-flow/internal/core/domain"
)

const DefaultStepInterval = 10 * time.Second

// OrderProgressSimulator advances an order through the delivery steps on a
// timer. It is a visual approximation only: it neither reads nor writes the
// order record and says nothing about where the food really is.
type OrderProgressSimulator struct {
	clock    clock.Clock
	interval time.Duration
	onStep   func(domain.OrderProgress)

	mu       sync.Mutex
	progress domain.OrderProgress
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

func NewOrderProgressSimulator(clk clock.Clock, interval time.Duration, orderID string, steps []domain.OrderStep, onStep func(domain.OrderProgress)) *OrderProgressSimulator {
	if interval <= 0 {
		interval = DefaultStepInterval
	}
	return &OrderProgressSimulator{
		clock:    clk,
		interval: interval,
		onStep:   onStep,
		progress: domain.OrderProgress{
			OrderID:   orderID,
			Steps:     steps,
			Simulated: true,
		},
	}
}

// Start launches the ticker. It does nothing when already running or when
// the terminal step has been reached.
func (s *OrderProgressSimulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.progress.Terminal() {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	ticker := s.clock.Ticker(s.interval)
	go s.run(ticker, s.stop, s.done)
}

func (s *OrderProgressSimulator) run(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.Advance() {
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			}
		}
	}
}

// Advance moves to the next step. It returns false once the terminal step
// is reached; further calls leave the index unchanged.
func (s *OrderProgressSimulator) Advance() bool {
	s.mu.Lock()
	if s.progress.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.progress.StepIndex++
	snapshot := s.snapshotLocked()
	more := !s.progress.Terminal()
	s.mu.Unlock()

	if s.onStep != nil {
		s.onStep(snapshot)
	}
	return more
}

// Stop cancels the ticker and waits for it to exit.
func (s *OrderProgressSimulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *OrderProgressSimulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *OrderProgressSimulator) Progress() domain.OrderProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *OrderProgressSimulator) snapshotLocked() domain.OrderProgress {
	p := s.progress
	p.Steps = append([]domain.OrderStep(nil), s.progress.Steps...)
	return p
}
