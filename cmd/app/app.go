package main

import (
	"context"
	"fmt"

	"ecoquest_miniapp/internal/cache"
	"ecoquest_miniapp/internal/catalog"
	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/progress"
	"ecoquest_miniapp/internal/repository"
	"ecoquest_miniapp/internal/scheduler"
	"ecoquest_miniapp/internal/service"
	"ecoquest_miniapp/pkg/logger"

	"go.uber.org/zap"
)

// app holds the wired engine shared by every command.
type app struct {
	cfg       *Config
	repo      *repository.Repository
	store     cache.Store
	stats     *cache.StatCache
	calendar  *period.Calendar
	clock     period.Clock
	svc       *service.Service
	scheduler *scheduler.Scheduler
	closers   []func() error
}

func newApp(cfg *Config) (*app, error) {
	log := logger.Logger()

	calendar, err := period.LoadCalendar(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	repo, err := repository.New(cfg.Database,
		repository.WithXPPerLevel(cfg.Progression.XPPerLevel),
		repository.WithVitalityMax(cfg.Progression.VitalityMax),
		repository.WithVitalityCeiling(cfg.Progression.VitalityCeiling),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	a := &app{
		cfg:      cfg,
		repo:     repo,
		calendar: calendar,
		clock:    period.SystemClock{},
		closers:  []func() error{repo.Close},
	}

	switch cfg.Cache.Store {
	case cacheStoreRedis:
		rs := cache.NewRedisStore(cfg.Redis)
		if err := rs.Ping(context.Background()); err != nil {
			// The engine stays correct without the cache.
			log.Warn("redis unreachable at startup, reads fall back to the database", zap.Error(err))
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
	case cacheStoreNone:
		a.store = cache.NoopStore{}
	default:
		ms := cache.NewMemoryStore()
		ms.StartSweeper(cfg.Cache.SweepInterval)
		a.store = ms
		a.closers = append(a.closers, ms.Close)
	}
	a.stats = cache.NewStatCache(a.store, repo, cfg.Cache.TTL)

	calc := progress.NewCalculator(cfg.Progress)
	missions := service.NewMissionService(repo, a.stats, calc, calendar, cfg.Missions)
	vitality := service.NewVitalityService(repo, calendar, cfg.Vitality)

	a.svc = service.NewService(
		service.NewUserService(repo, a.stats),
		missions,
		service.NewClaimService(repo, a.stats, calc, calendar, a.clock),
		vitality,
		service.NewActivityService(repo, a.stats, calendar),
	)

	a.scheduler, err = scheduler.New(calendar, vitality, missions, a.clock, cfg.Scheduler)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.scheduler.Shutdown)

	return a, nil
}

// prepare applies the schema and upserts the mission catalog.
func (a *app) prepare(ctx context.Context) error {
	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}
	return a.seed(ctx)
}

func (a *app) seed(ctx context.Context) error {
	defs, err := a.loadCatalog()
	if err != nil {
		return err
	}
	if err := a.repo.UpsertDefinitions(ctx, defs); err != nil {
		return fmt.Errorf("failed to seed mission catalog: %w", err)
	}
	logger.Logger().Info("Seeded mission catalog", zap.Int("definitions", len(defs)))
	return nil
}

func (a *app) loadCatalog() ([]*model.MissionDefinition, error) {
	if a.cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(a.cfg.CatalogPath)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Logger().Warn("failed to close resource", zap.Error(err))
		}
	}
}
