package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

var ErrBusy = errors.New("a previous request is still being processed")

type ProfileService struct {
	repo  port.ProfileRepository
	clock clock.Clock
}

func NewProfileService(repo port.ProfileRepository, clk clock.Clock) *ProfileService {
	return &ProfileService{repo: repo, clock: clk}
}

// Get returns an empty profile for users who never saved one.
func (s *ProfileService) Get(ctx context.Context, userID string) (domain.Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		return domain.Profile{ID: userID}, nil
	}
	return *profile, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, p domain.Profile) (domain.Profile, error) {
	p.ID = userID
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Address = strings.TrimSpace(p.Address)
	p.UpdatedAt = s.clock.Now()

	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}
