package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/repository"
)

var (
	ErrNotFound          = errors.New("mission not found")
	ErrAlreadyClaimed    = errors.New("mission already claimed")
	ErrInsufficientLevel = errors.New("level too low for this mission")
	ErrMissionIncomplete = errors.New("mission is not completed yet")
	ErrValidation        = errors.New("invalid request")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrUserNotFound      = errors.New("user not found")
)

type Service struct {
	Users      *UserService
	Missions   *MissionService
	Claims     *ClaimService
	Vitality   *VitalityService
	Activities *ActivityService
}

func NewService(
	users *UserService,
	missions *MissionService,
	claims *ClaimService,
	vitality *VitalityService,
	activities *ActivityService,
) *Service {
	return &Service{
		Users:      users,
		Missions:   missions,
		Claims:     claims,
		Vitality:   vitality,
		Activities: activities,
	}
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	UpdateAuthDate(ctx context.Context, userID int64, username string, authDate time.Time) error
	GetTopUsers(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
}

type LogRepository interface {
	AggregateLogs(ctx context.Context, userID int64, from, to string) (*model.LogAggregate, error)
}

type MissionRepository interface {
	LogRepository
	ListDefinitions(ctx context.Context, track model.CatalogTrack) ([]*model.MissionDefinition, error)
	InsertInstances(ctx context.Context, instances []*model.MissionInstance) error
	ListInstances(ctx context.Context, userID int64, track model.Track, periodKey string) ([]*model.MissionInstance, error)
	DeleteExpiredInstances(ctx context.Context, userID int64, dailyBefore, weeklyBefore string) (int64, error)
	EnsurePersistent(ctx context.Context, userID int64, definitionIDs []int64) error
	ListPersistent(ctx context.Context, userID int64) ([]*model.PersistentProgress, error)
}

type ClaimRepository interface {
	LogRepository
	GetClaimTarget(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimTarget, error)
	CommitClaim(ctx context.Context, c model.ClaimCommit) (*model.ClaimResult, error)
}

type VitalityRepository interface {
	GetVitality(ctx context.Context, userID int64) (*model.Vitality, error)
	DecayAll(ctx context.Context, amount int64, today string, now time.Time) (int64, error)
}

type ActivityRepository interface {
	InsertActivity(ctx context.Context, entry *model.ActivityLog) (*model.UserStats, error)
}

// StatsCache is the slice of cache.StatCache the services depend on.
type StatsCache interface {
	Get(ctx context.Context, userID int64) (*model.UserStats, error)
	Refresh(ctx context.Context, stats *model.UserStats)
	CO2Saved(ctx context.Context, userID int64) (float64, error)
	InvalidateCO2(ctx context.Context, userID int64)
	GetMissions(ctx context.Context, userID int64, track model.Track) (*model.MissionList, bool)
	SetMissions(ctx context.Context, userID int64, list *model.MissionList)
	DropMissions(ctx context.Context, userID int64, track model.Track)
	InvalidateMissions(ctx context.Context, userID int64)
}

// mapRepoError translates repository sentinels. Anything unrecognized is a
// durable store failure.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrAlreadyClaimed):
		return ErrAlreadyClaimed
	case errors.Is(err, repository.ErrInsufficientLevel):
		return ErrInsufficientLevel
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// mapUserError is mapRepoError for lookups keyed by the caller's own id.
func mapUserError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return mapRepoError(err)
}
