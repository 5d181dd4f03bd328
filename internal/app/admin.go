package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/sde"
	"github.com/aflyhorse/kmstat/internal/auth"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
)

// InitDB applies the schema and seeds the unclaimed player plus, when
// configured, the initial admin user.
func (s *Service) InitDB(ctx context.Context, drop bool) error {
	if s.store == nil {
		return ErrNoStore
	}
	if err := s.store.InitSchema(ctx, drop); err != nil {
		return err
	}
	if _, err := s.store.FindOrCreatePlayer(ctx, model.UnclaimedTitle); err != nil {
		return fmt.Errorf("seeding unclaimed player: %w", err)
	}

	if s.adminUser != "" && s.adminPassword != "" {
		hash, err := auth.HashPassword(s.adminPassword)
		if err != nil {
			return err
		}
		err = s.store.CreateUser(ctx, s.adminUser, hash)
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("seeding admin user: %w", err)
		}
		if err == nil {
			s.logger.Info(ctx, "seeded admin user", logger.String("username", s.adminUser))
		}
	}

	s.logger.Info(ctx, "database initialized", logger.Bool("dropped", drop))
	return nil
}

// RefreshSDE reloads solar system and item type reference data.
func (s *Service) RefreshSDE(ctx context.Context) (sde.Result, error) {
	if s.refresher == nil {
		return sde.Result{}, ErrNoUpstream
	}
	return s.refresher.Refresh(ctx)
}
