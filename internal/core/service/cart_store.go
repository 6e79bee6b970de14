package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

// CartStore holds the cart of one client. The in-memory lines are
// authoritative; every mutation is also written to durable storage, and
// write failures are only logged.
type CartStore struct {
	mu      sync.Mutex
	storage port.CartStorage
	key     string
	pricing domain.Pricing
	lines   []domain.CartLine
}

// NewCartStore loads the snapshot stored under key. A missing or unreadable
// snapshot yields an empty cart.
func NewCartStore(ctx context.Context, storage port.CartStorage, key string, pricing domain.Pricing) *CartStore {
	s := &CartStore{
		storage: storage,
		key:     key,
		pricing: pricing,
	}
	s.lines = s.load(ctx)
	return s
}

func (s *CartStore) load(ctx context.Context) []domain.CartLine {
	data, err := s.storage.LoadCart(ctx, s.key)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("cart: load failed, starting empty")
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("cart: stored snapshot is malformed, starting empty")
		return nil
	}

	// Keep the invariants even if someone else wrote the key.
	valid := lines[:0]
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.ItemID == "" || l.Quantity <= 0 || seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		valid = append(valid, l)
	}
	return valid
}

// persist must be called with mu held so writes reach storage in mutation order.
func (s *CartStore) persist(ctx context.Context) {
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		log.Error().Err(err).Str("key", s.key).Msg("cart: marshal failed")
		return
	}
	if err := s.storage.SaveCart(ctx, s.key, data); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("cart: save failed")
	}
}

func (s *CartStore) indexOf(itemID string) int {
	for i, l := range s.lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

// AddItem increments the quantity of an existing line or appends a new one
// with quantity 1.
func (s *CartStore) AddItem(ctx context.Context, item domain.MenuItem) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.ID); i >= 0 {
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, domain.CartLine{
			ItemID:         item.ID,
			Name:           item.Name,
			UnitPriceCents: item.PriceCents,
			Quantity:       1,
			ImageRef:       item.ImageRef,
		})
	}

	s.persist(ctx)
	return domain.NewCartSnapshot(s.lines, s.pricing)
}

// RemoveItem is a no-op when no line matches.
func (s *CartStore) RemoveItem(ctx context.Context, itemID string) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(ctx, itemID)
	return domain.NewCartSnapshot(s.lines, s.pricing)
}

func (s *CartStore) removeLocked(ctx context.Context, itemID string) {
	i := s.indexOf(itemID)
	if i < 0 {
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
}

// SetQuantity replaces the quantity of a line. A quantity <= 0 removes it.
func (s *CartStore) SetQuantity(ctx context.Context, itemID string, quantity int) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(ctx, itemID)
		return domain.NewCartSnapshot(s.lines, s.pricing)
	}

	if i := s.indexOf(itemID); i >= 0 {
		s.lines[i].Quantity = quantity
		s.persist(ctx)
	}
	return domain.NewCartSnapshot(s.lines, s.pricing)
}

func (s *CartStore) Clear(ctx context.Context) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.persist(ctx)
	return domain.NewCartSnapshot(nil, s.pricing)
}

// Take snapshots and empties the cart in one step, so a concurrent AddItem
// lands either in the returned snapshot or in the emptied cart.
func (s *CartStore) Take(ctx context.Context) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := domain.NewCartSnapshot(s.lines, s.pricing)
	if len(s.lines) == 0 {
		return snapshot
	}
	s.lines = nil
	s.persist(ctx)
	return snapshot
}

// Restore puts lines returned by Take back in front of the cart. Quantities
// of items added in the meantime are summed.
func (s *CartStore) Restore(ctx context.Context, lines []domain.CartLine) domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(lines) == 0 {
		return domain.NewCartSnapshot(s.lines, s.pricing)
	}

	restored := make([]domain.CartLine, 0, len(lines)+len(s.lines))
	restored = append(restored, lines...)
	for _, l := range s.lines {
		merged := false
		for i := range restored {
			if restored[i].ItemID == l.ItemID {
				restored[i].Quantity += l.Quantity
				merged = true
				break
			}
		}
		if !merged {
			restored = append(restored, l)
		}
	}
	s.lines = restored
	s.persist(ctx)
	return domain.NewCartSnapshot(s.lines, s.pricing)
}

func (s *CartStore) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewCartSnapshot(s.lines, s.pricing)
}
