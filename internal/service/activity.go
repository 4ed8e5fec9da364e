package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ActivityInput struct {
	ActivityID     int64
	InputValue     float64
	CarbonSaved    float64
	CarbonProduced float64
	// LogDate defaults to today when empty.
	LogDate string
}

func (in ActivityInput) validate(today string) error {
	if in.ActivityID <= 0 {
		return fmt.Errorf("%w: activity id must be positive", ErrValidation)
	}
	for _, v := range []float64{in.InputValue, in.CarbonSaved, in.CarbonProduced} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: amounts must be finite and not negative", ErrValidation)
		}
	}
	if in.LogDate == "" {
		return nil
	}
	if _, err := time.Parse(model.DateLayout, in.LogDate); err != nil {
		return fmt.Errorf("%w: log date must be YYYY-MM-DD", ErrValidation)
	}
	if in.LogDate > today {
		return fmt.Errorf("%w: log date is in the future", ErrValidation)
	}
	return nil
}

type ActivityService struct {
	repo     ActivityRepository
	stats    StatsCache
	calendar *period.Calendar
	log      *zap.Logger
}

func NewActivityService(repo ActivityRepository, stats StatsCache, calendar *period.Calendar) *ActivityService {
	return &ActivityService{
		repo:     repo,
		stats:    stats,
		calendar: calendar,
		log:      logger.Logger().Named("activities"),
	}
}

// Log appends an activity entry for the user and returns the updated stats.
func (s *ActivityService) Log(ctx context.Context, userID int64, in ActivityInput, now time.Time) (*model.UserStats, error) {
	today := s.calendar.Today(now)
	if err := in.validate(today); err != nil {
		return nil, err
	}
	logDate := in.LogDate
	if logDate == "" {
		logDate = today
	}

	stats, err := s.repo.InsertActivity(ctx, &model.ActivityLog{
		ID:             uuid.New(),
		UserID:         userID,
		ActivityID:     in.ActivityID,
		InputValue:     in.InputValue,
		CarbonSaved:    in.CarbonSaved,
		CarbonProduced: in.CarbonProduced,
		LogDate:        logDate,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, mapUserError(err)
	}

	s.stats.Refresh(ctx, stats)
	s.stats.InvalidateCO2(ctx, userID)
	s.stats.InvalidateMissions(ctx, userID)

	s.log.Debug("activity logged",
		zap.Int64("user_id", userID),
		zap.Int64("activity_id", in.ActivityID),
		zap.String("log_date", logDate),
	)
	return stats, nil
}
