package service

import (
	"context"
	"errors"
	"fmt"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/repository"
)

const (
	defaultLeaderboardSize = 100
	maxLeaderboardSize     = 100
)

type UserSummary struct {
	Stats    *model.UserStats
	CO2Saved float64
}

type UserService struct {
	repo  UserRepository
	stats StatsCache
}

func NewUserService(repo UserRepository, stats StatsCache) *UserService {
	return &UserService{
		repo:  repo,
		stats: stats,
	}
}

// RegisterUser creates the user with fresh stats and vitality rows. A
// returning user only has the username and auth date refreshed.
func (s *UserService) RegisterUser(ctx context.Context, user *model.User) (*model.User, error) {
	if user == nil || user.UserID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	err := s.repo.CreateUser(ctx, user)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrAlreadyExists):
		if err := s.repo.UpdateAuthDate(ctx, user.UserID, user.Username, user.AuthDate); err != nil {
			return nil, mapUserError(err)
		}
	default:
		return nil, mapRepoError(err)
	}

	stored, err := s.repo.GetUser(ctx, user.UserID)
	if err != nil {
		return nil, mapUserError(err)
	}
	return stored, nil
}

func (s *UserService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	return user, nil
}

// GetSummary reads the user's stats and total CO2 saved through the cache.
func (s *UserService) GetSummary(ctx context.Context, userID int64) (*UserSummary, error) {
	stats, err := s.stats.Get(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}

	saved, err := s.stats.CO2Saved(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	return &UserSummary{Stats: stats, CO2Saved: saved}, nil
}

func (s *UserService) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	entries, err := s.repo.GetTopUsers(ctx, limit)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return entries, nil
}
