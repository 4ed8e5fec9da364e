// Package scheduler runs the engine's daily maintenance: vitality decay and
// the cleanup of expired mission instances.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/pkg/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type VitalityDecayer interface {
	Decay(ctx context.Context, now time.Time) (int64, error)
}

type MissionCleaner interface {
	CleanupAll(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	// Hour and Minute of the daily run in the calendar's zone.
	Hour       uint          `mapstructure:"hour"`
	Minute     uint          `mapstructure:"minute"`
	RunOnStart bool          `mapstructure:"runOnStart"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Hour > 23 {
		c.Hour = 0
	}
	if c.Minute > 59 {
		c.Minute = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

type Scheduler struct {
	sched    gocron.Scheduler
	vitality VitalityDecayer
	missions MissionCleaner
	clock    period.Clock
	loc      *time.Location
	cfg      Config
	log      *zap.Logger
}

func New(
	calendar *period.Calendar,
	vitality VitalityDecayer,
	missions MissionCleaner,
	clock period.Clock,
	cfg Config,
) (*Scheduler, error) {
	if clock == nil {
		clock = period.SystemClock{}
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(calendar.Location()))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		sched:    sched,
		vitality: vitality,
		missions: missions,
		clock:    clock,
		loc:      calendar.Location(),
		cfg:      cfg.withDefaults(),
		log:      logger.Logger().Named("scheduler"),
	}, nil
}

// Start registers the daily job and starts the scheduler. The job stops
// firing once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(s.cfg.Hour, s.cfg.Minute, 0))),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("daily maintenance failed", zap.Error(err))
			}
		}),
		gocron.WithName("daily-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register daily job: %w", err)
	}

	s.sched.Start()
	s.log.Info("scheduler started",
		zap.Uint("hour", s.cfg.Hour),
		zap.Uint("minute", s.cfg.Minute),
		zap.String("location", s.loc.String()),
	)

	if s.cfg.RunOnStart {
		go func() {
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("startup maintenance failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// NextRun reports when the daily job fires next.
func (s *Scheduler) NextRun() (time.Time, error) {
	jobs := s.sched.Jobs()
	if len(jobs) == 0 {
		return time.Time{}, errors.New("scheduler not started")
	}
	return jobs[0].NextRun()
}

// RunOnce performs one maintenance pass. Decay is guarded by date in the
// store, so a repeated pass on the same day changes nothing.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	now := s.clock.Now()

	var errs []error
	decayed, err := s.vitality.Decay(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("vitality decay: %w", err))
	}
	deleted, err := s.missions.CleanupAll(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("mission cleanup: %w", err))
	}

	s.log.Info("daily maintenance finished",
		zap.Int64("decayed", decayed),
		zap.Int64("expired_instances", deleted),
		zap.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
