package service

import (
	"context"
	"errors"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/progress"
	"ecoquest_miniapp/pkg/logger"

	"go.uber.org/zap"
)

type ClaimService struct {
	repo     ClaimRepository
	stats    StatsCache
	calc     *progress.Calculator
	calendar *period.Calendar
	clock    period.Clock
	log      *zap.Logger
}

func NewClaimService(
	repo ClaimRepository,
	stats StatsCache,
	calc *progress.Calculator,
	calendar *period.Calendar,
	clock period.Clock,
) *ClaimService {
	if clock == nil {
		clock = period.SystemClock{}
	}
	return &ClaimService{
		repo:     repo,
		stats:    stats,
		calc:     calc,
		calendar: calendar,
		clock:    clock,
		log:      logger.Logger().Named("claims"),
	}
}

// Claim credits a completed mission to its owner exactly once. The status
// flip, XP, level and vitality are committed together or not at all.
func (s *ClaimService) Claim(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimResult, error) {
	now := s.clock.Now()

	target, err := s.repo.GetClaimTarget(ctx, userID, ref)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if target.Status == model.StatusClaimed {
		return nil, ErrAlreadyClaimed
	}

	if ref.Track == model.TrackPersistent {
		stats, err := s.stats.Get(ctx, userID)
		if err != nil {
			return nil, mapUserError(err)
		}
		if stats.CurrentLevel < target.Definition.MinLevel {
			return nil, ErrInsufficientLevel
		}
	}

	res, err := s.progress(ctx, userID, target, now)
	if err != nil {
		return nil, err
	}
	if !res.Complete {
		return nil, ErrMissionIncomplete
	}

	result, err := s.repo.CommitClaim(ctx, model.ClaimCommit{
		UserID:         userID,
		Ref:            ref,
		XPReward:       target.XPReward,
		VitalityReward: target.VitalityReward,
		MinLevel:       target.Definition.MinLevel,
		ClaimedAt:      now,
	})
	if err != nil {
		mapped := mapRepoError(err)
		if errors.Is(mapped, ErrStoreUnavailable) {
			s.log.Error("claim transaction failed",
				zap.Int64("user_id", userID),
				zap.String("track", string(ref.Track)),
				zap.String("mission_id", ref.ID),
				zap.Error(err),
			)
		}
		return nil, mapped
	}
	result.Percentage = res.Percentage

	s.stats.Refresh(ctx, result.Stats)
	s.stats.InvalidateMissions(ctx, userID)

	s.log.Info("mission claimed",
		zap.Int64("user_id", userID),
		zap.String("track", string(ref.Track)),
		zap.String("mission_id", ref.ID),
		zap.Int("xp_added", result.XPAdded),
		zap.Int64("new_xp", result.NewXP),
		zap.Bool("leveled_up", result.LeveledUp),
	)
	return result, nil
}

func (s *ClaimService) progress(ctx context.Context, userID int64, target *model.ClaimTarget, now time.Time) (progress.Result, error) {
	var from, to string
	if target.Ref.Track.Periodic() {
		var err error
		from, to, err = period.KeyWindow(target.Ref.Track, target.PeriodKey)
		if err != nil {
			return progress.Result{}, err
		}
	} else {
		from, to = s.calendar.Window(model.TrackPersistent, now)
	}

	agg, err := s.repo.AggregateLogs(ctx, userID, from, to)
	if err != nil {
		return progress.Result{}, mapRepoError(err)
	}
	return s.calc.Progress(target.Definition, agg)
}
