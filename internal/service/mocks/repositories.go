package mocks

import (
	"context"
	"time"

	"ecoquest_miniapp/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateAuthDate(ctx context.Context, userID int64, username string, authDate time.Time) error {
	args := m.Called(ctx, userID, username, authDate)
	return args.Error(0)
}

func (m *MockUserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LeaderboardEntry), args.Error(1)
}

type MockMissionRepository struct {
	mock.Mock
}

func (m *MockMissionRepository) AggregateLogs(ctx context.Context, userID int64, from, to string) (*model.LogAggregate, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LogAggregate), args.Error(1)
}

func (m *MockMissionRepository) ListDefinitions(ctx context.Context, track model.CatalogTrack) ([]*model.MissionDefinition, error) {
	args := m.Called(ctx, track)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MissionDefinition), args.Error(1)
}

func (m *MockMissionRepository) InsertInstances(ctx context.Context, instances []*model.MissionInstance) error {
	args := m.Called(ctx, instances)
	return args.Error(0)
}

func (m *MockMissionRepository) ListInstances(ctx context.Context, userID int64, track model.Track, periodKey string) ([]*model.MissionInstance, error) {
	args := m.Called(ctx, userID, track, periodKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.MissionInstance), args.Error(1)
}

func (m *MockMissionRepository) DeleteExpiredInstances(ctx context.Context, userID int64, dailyBefore, weeklyBefore string) (int64, error) {
	args := m.Called(ctx, userID, dailyBefore, weeklyBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMissionRepository) EnsurePersistent(ctx context.Context, userID int64, definitionIDs []int64) error {
	args := m.Called(ctx, userID, definitionIDs)
	return args.Error(0)
}

func (m *MockMissionRepository) ListPersistent(ctx context.Context, userID int64) ([]*model.PersistentProgress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PersistentProgress), args.Error(1)
}

type MockClaimRepository struct {
	mock.Mock
}

func (m *MockClaimRepository) AggregateLogs(ctx context.Context, userID int64, from, to string) (*model.LogAggregate, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LogAggregate), args.Error(1)
}

func (m *MockClaimRepository) GetClaimTarget(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimTarget, error) {
	args := m.Called(ctx, userID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClaimTarget), args.Error(1)
}

func (m *MockClaimRepository) CommitClaim(ctx context.Context, c model.ClaimCommit) (*model.ClaimResult, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClaimResult), args.Error(1)
}

type MockVitalityRepository struct {
	mock.Mock
}

func (m *MockVitalityRepository) GetVitality(ctx context.Context, userID int64) (*model.Vitality, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Vitality), args.Error(1)
}

func (m *MockVitalityRepository) DecayAll(ctx context.Context, amount int64, today string, now time.Time) (int64, error) {
	args := m.Called(ctx, amount, today, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) InsertActivity(ctx context.Context, entry *model.ActivityLog) (*model.UserStats, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserStats), args.Error(1)
}

// MockStatsRepository backs a real cache.StatCache in service tests.
type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) GetUserStats(ctx context.Context, userID int64) (*model.UserStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserStats), args.Error(1)
}

func (m *MockStatsRepository) UpdateUserStats(ctx context.Context, stats *model.UserStats) (*model.UserStats, error) {
	args := m.Called(ctx, stats)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserStats), args.Error(1)
}

func (m *MockStatsRepository) TotalCO2Saved(ctx context.Context, userID int64) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}
