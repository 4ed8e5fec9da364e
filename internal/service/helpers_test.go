package service

import (
	"testing"
	"time"

	"ecoquest_miniapp/internal/cache"
	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/progress"
	"ecoquest_miniapp/internal/service/mocks"
)

// Wednesday; the week started on 2024-03-11.
var testNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

type fixture struct {
	calendar  *period.Calendar
	calc      *progress.Calculator
	store     *cache.MemoryStore
	statsRepo *mocks.MockStatsRepository
	stats     *cache.StatCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := cache.NewMemoryStore()
	statsRepo := &mocks.MockStatsRepository{}

	return &fixture{
		calendar:  period.NewCalendar(time.UTC),
		calc:      progress.NewCalculator(progress.DefaultConfig()),
		store:     store,
		statsRepo: statsRepo,
		stats:     cache.NewStatCache(store, statsRepo, cache.Config{}),
	}
}

func periodicPool() []*model.MissionDefinition {
	var pool []*model.MissionDefinition
	id := int64(1)
	add := func(n int, difficulty model.Difficulty, typ model.MissionType, days int) {
		for i := 0; i < n; i++ {
			pool = append(pool, &model.MissionDefinition{
				ID:             id,
				Track:          model.CatalogPeriodic,
				Type:           typ,
				Title:          string(difficulty),
				TargetValue:    2,
				DurationDays:   days,
				XPReward:       10 * int(id),
				VitalityReward: 5,
				MinLevel:       1,
				Difficulty:     difficulty,
			})
			id++
		}
	}
	add(6, model.DifficultyEasy, model.MissionCO2Saved, 1)
	add(2, model.DifficultyMedium, model.MissionActivityCount, 1)
	add(3, model.DifficultyMedium, model.MissionConsecutiveDays, 7)
	add(4, model.DifficultyHard, model.MissionCO2Saved, 7)
	add(2, model.DifficultyExpert, model.MissionConsecutiveDays, 7)
	return pool
}

func savedAggregate(from, to string, saved float64) *model.LogAggregate {
	agg := model.NewLogAggregate(from, to)
	agg.ByActivity[110] = model.ActivityTotals{CarbonSaved: saved, InputValue: 1, Count: 1}
	agg.Days = []model.DayTotal{{Date: to, CarbonSaved: saved}}
	return agg
}
