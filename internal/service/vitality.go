package service

import (
	"context"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/pkg/logger"

	"go.uber.org/zap"
)

type VitalityConfig struct {
	DecayAmount int64 `mapstructure:"decayAmount"`
}

func (c VitalityConfig) withDefaults() VitalityConfig {
	if c.DecayAmount <= 0 {
		c.DecayAmount = 10
	}
	return c
}

type VitalityService struct {
	repo     VitalityRepository
	calendar *period.Calendar
	cfg      VitalityConfig
	log      *zap.Logger
}

func NewVitalityService(repo VitalityRepository, calendar *period.Calendar, cfg VitalityConfig) *VitalityService {
	return &VitalityService{
		repo:     repo,
		calendar: calendar,
		cfg:      cfg.withDefaults(),
		log:      logger.Logger().Named("vitality"),
	}
}

func (s *VitalityService) Get(ctx context.Context, userID int64, now time.Time) (*model.VitalityStatus, error) {
	v, err := s.repo.GetVitality(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	return &model.VitalityStatus{
		Value:             v.Value,
		LifetimeTotal:     v.LifetimeTotal,
		SecondsUntilDecay: s.calendar.SecondsUntilMidnight(now),
	}, nil
}

// Decay applies the daily decrement to every user not yet decayed today and
// returns how many rows changed. Calling it again on the same local date is
// a no-op.
func (s *VitalityService) Decay(ctx context.Context, now time.Time) (int64, error) {
	today := s.calendar.Today(now)

	affected, err := s.repo.DecayAll(ctx, s.cfg.DecayAmount, today, now)
	if err != nil {
		s.log.Error("vitality decay failed", zap.String("date", today), zap.Error(err))
		return 0, mapRepoError(err)
	}

	s.log.Info("vitality decayed",
		zap.String("date", today),
		zap.Int64("amount", s.cfg.DecayAmount),
		zap.Int64("rows", affected),
	)
	return affected, nil
}
