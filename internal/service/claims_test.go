package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/repository"
	"ecoquest_miniapp/internal/service/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dailyTarget(ref model.MissionRef, status model.MissionStatus) *model.ClaimTarget {
	return &model.ClaimTarget{
		Ref:    ref,
		UserID: 1,
		Definition: &model.MissionDefinition{
			ID: 1, Track: model.CatalogPeriodic, Type: model.MissionCO2Saved,
			TargetValue: 2, DurationDays: 1, XPReward: 10, VitalityReward: 5, MinLevel: 1,
			Difficulty: model.DifficultyEasy,
		},
		PeriodKey:      "2024-03-13",
		Status:         status,
		XPReward:       10,
		VitalityReward: 5,
	}
}

func persistentTarget(minLevel int) *model.ClaimTarget {
	return &model.ClaimTarget{
		Ref:    model.MissionRef{Track: model.TrackPersistent, ID: "104"},
		UserID: 1,
		Definition: &model.MissionDefinition{
			ID: 104, Track: model.CatalogPersistent, Type: model.MissionCO2Saved,
			TargetValue: 5, XPReward: 250, VitalityReward: 20, MinLevel: minLevel,
			Difficulty: model.DifficultyHard,
		},
		Status:         model.StatusPending,
		XPReward:       250,
		VitalityReward: 20,
	}
}

func newClaimService(f *fixture, repo ClaimRepository) *ClaimService {
	return NewClaimService(repo, f.stats, f.calc, f.calendar, period.FixedClock{T: testNow})
}

func TestClaimService_Claim(t *testing.T) {
	ctx := context.Background()
	ref := model.MissionRef{Track: model.TrackDaily, ID: uuid.NewString()}

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		newStats := &model.UserStats{UserID: 1, TotalXP: 105, CurrentLevel: 2, Vitality: 55}
		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(dailyTarget(ref, model.StatusPending), nil)
		repo.On("AggregateLogs", mock.Anything, int64(1), "2024-03-13", "2024-03-13").
			Return(savedAggregate("2024-03-13", "2024-03-13", 2.5), nil)
		repo.On("CommitClaim", mock.Anything, model.ClaimCommit{
			UserID: 1, Ref: ref, XPReward: 10, VitalityReward: 5, MinLevel: 1, ClaimedAt: testNow,
		}).Return(&model.ClaimResult{
			XPAdded: 10, VitalityAdded: 5, OldXP: 95, OldLevel: 1, NewXP: 105, NewLevel: 2,
			LeveledUp: true, NewVitality: 55, Stats: newStats,
		}, nil)

		// A stale mission list must not survive the claim.
		f.stats.SetMissions(ctx, 1, &model.MissionList{Track: model.TrackDaily, PeriodKey: "2024-03-13"})

		res, err := svc.Claim(ctx, 1, ref)
		require.NoError(t, err)
		assert.Equal(t, int64(105), res.NewXP)
		assert.Equal(t, 2, res.NewLevel)
		assert.True(t, res.LeveledUp)
		assert.Equal(t, 100.0, res.Percentage)

		cached, err := f.stats.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, newStats, cached)
		f.statsRepo.AssertNotCalled(t, "GetUserStats", mock.Anything, mock.Anything)

		_, hit := f.stats.GetMissions(ctx, 1, model.TrackDaily)
		assert.False(t, hit)
	})

	t.Run("already claimed", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(dailyTarget(ref, model.StatusClaimed), nil)

		_, err := svc.Claim(ctx, 1, ref)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
		repo.AssertNotCalled(t, "CommitClaim", mock.Anything, mock.Anything)
	})

	t.Run("lost race at commit", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(dailyTarget(ref, model.StatusPending), nil)
		repo.On("AggregateLogs", mock.Anything, int64(1), "2024-03-13", "2024-03-13").
			Return(savedAggregate("2024-03-13", "2024-03-13", 3), nil)
		repo.On("CommitClaim", mock.Anything, mock.Anything).Return(nil, repository.ErrAlreadyClaimed)

		_, err := svc.Claim(ctx, 1, ref)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(nil, fmt.Errorf("lookup: %w", repository.ErrNotFound))

		_, err := svc.Claim(ctx, 1, ref)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("incomplete", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(dailyTarget(ref, model.StatusPending), nil)
		repo.On("AggregateLogs", mock.Anything, int64(1), "2024-03-13", "2024-03-13").
			Return(savedAggregate("2024-03-13", "2024-03-13", 1.9), nil)

		_, err := svc.Claim(ctx, 1, ref)
		assert.ErrorIs(t, err, ErrMissionIncomplete)
		repo.AssertNotCalled(t, "CommitClaim", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(dailyTarget(ref, model.StatusPending), nil)
		repo.On("AggregateLogs", mock.Anything, int64(1), "2024-03-13", "2024-03-13").
			Return(savedAggregate("2024-03-13", "2024-03-13", 3), nil)
		repo.On("CommitClaim", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		_, err := svc.Claim(ctx, 1, ref)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestClaimService_WeeklyUsesWholePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repo := &mocks.MockClaimRepository{}
	svc := newClaimService(f, repo)

	ref := model.MissionRef{Track: model.TrackWeekly, ID: uuid.NewString()}
	target := dailyTarget(ref, model.StatusPending)
	target.PeriodKey = "2024-03-11"

	repo.On("GetClaimTarget", mock.Anything, int64(1), ref).Return(target, nil)
	repo.On("AggregateLogs", mock.Anything, int64(1), "2024-03-11", "2024-03-17").
		Return(savedAggregate("2024-03-11", "2024-03-17", 0.5), nil)

	_, err := svc.Claim(ctx, 1, ref)
	assert.ErrorIs(t, err, ErrMissionIncomplete)
	repo.AssertExpectations(t)
}

func TestClaimService_Persistent(t *testing.T) {
	ctx := context.Background()

	t.Run("level too low", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		target := persistentTarget(5)
		repo.On("GetClaimTarget", mock.Anything, int64(1), target.Ref).Return(target, nil)
		f.statsRepo.On("GetUserStats", mock.Anything, int64(1)).
			Return(&model.UserStats{UserID: 1, TotalXP: 250, CurrentLevel: 3}, nil)

		_, err := svc.Claim(ctx, 1, target.Ref)
		assert.ErrorIs(t, err, ErrInsufficientLevel)
		repo.AssertNotCalled(t, "AggregateLogs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("all-time window", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		target := persistentTarget(1)
		repo.On("GetClaimTarget", mock.Anything, int64(1), target.Ref).Return(target, nil)
		f.statsRepo.On("GetUserStats", mock.Anything, int64(1)).
			Return(&model.UserStats{UserID: 1, TotalXP: 20, CurrentLevel: 1}, nil)
		repo.On("AggregateLogs", mock.Anything, int64(1), period.AllTime, "2024-03-13").
			Return(savedAggregate(period.AllTime, "2024-03-13", 6), nil)
		repo.On("CommitClaim", mock.Anything, mock.MatchedBy(func(c model.ClaimCommit) bool {
			return c.Ref == target.Ref && c.XPReward == 250 && c.MinLevel == 1
		})).Return(&model.ClaimResult{
			XPAdded: 250, OldXP: 20, OldLevel: 1, NewXP: 270, NewLevel: 3, LeveledUp: true,
			Stats: &model.UserStats{UserID: 1, TotalXP: 270, CurrentLevel: 3},
		}, nil)

		res, err := svc.Claim(ctx, 1, target.Ref)
		require.NoError(t, err)
		assert.Equal(t, 3, res.NewLevel)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		repo := &mocks.MockClaimRepository{}
		svc := newClaimService(f, repo)

		target := persistentTarget(1)
		repo.On("GetClaimTarget", mock.Anything, int64(1), target.Ref).Return(target, nil)
		f.statsRepo.On("GetUserStats", mock.Anything, int64(1)).Return(nil, repository.ErrNotFound)

		_, err := svc.Claim(ctx, 1, target.Ref)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

// casRepository commits a claim only while the mission is still pending.
type casRepository struct {
	mu      sync.Mutex
	claimed bool
	target  *model.ClaimTarget
}

func (r *casRepository) AggregateLogs(_ context.Context, _ int64, from, to string) (*model.LogAggregate, error) {
	return savedAggregate(from, to, 10), nil
}

func (r *casRepository) GetClaimTarget(_ context.Context, _ int64, _ model.MissionRef) (*model.ClaimTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := *r.target
	if r.claimed {
		t.Status = model.StatusClaimed
	}
	return &t, nil
}

func (r *casRepository) CommitClaim(_ context.Context, c model.ClaimCommit) (*model.ClaimResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed {
		return nil, repository.ErrAlreadyClaimed
	}
	r.claimed = true
	return &model.ClaimResult{
		XPAdded: c.XPReward, NewXP: int64(c.XPReward), NewLevel: 1,
		Stats: &model.UserStats{UserID: c.UserID, TotalXP: int64(c.XPReward), CurrentLevel: 1},
	}, nil
}

func TestClaimService_ConcurrentClaimsCreditOnce(t *testing.T) {
	f := newFixture(t)
	ref := model.MissionRef{Track: model.TrackDaily, ID: uuid.NewString()}
	repo := &casRepository{target: dailyTarget(ref, model.StatusPending)}
	svc := newClaimService(f, repo)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(context.Background(), 1, ref)
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, ErrAlreadyClaimed):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(15), conflicts.Load())
}
