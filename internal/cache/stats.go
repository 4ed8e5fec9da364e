package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/pkg/logger"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Config struct {
	StatsTTL    time.Duration `mapstructure:"statsTTL"`
	CO2TTL      time.Duration `mapstructure:"co2TTL"`
	MissionsTTL time.Duration `mapstructure:"missionsTTL"`
	// FenceTTL bounds how long an invalidated key refuses read-through
	// populates. It must exceed the slowest durable read.
	FenceTTL time.Duration `mapstructure:"fenceTTL"`
}

func DefaultConfig() Config {
	return Config{
		StatsTTL:    30 * time.Minute,
		CO2TTL:      30 * time.Minute,
		MissionsTTL: time.Minute,
		FenceTTL:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.StatsTTL <= 0 {
		c.StatsTTL = defaults.StatsTTL
	}
	if c.CO2TTL <= 0 {
		c.CO2TTL = defaults.CO2TTL
	}
	if c.MissionsTTL <= 0 {
		c.MissionsTTL = defaults.MissionsTTL
	}
	if c.FenceTTL <= 0 {
		c.FenceTTL = defaults.FenceTTL
	}
	return c
}

// StatsRepository is the durable source of truth behind the cache.
type StatsRepository interface {
	GetUserStats(ctx context.Context, userID int64) (*model.UserStats, error)
	UpdateUserStats(ctx context.Context, stats *model.UserStats) (*model.UserStats, error)
	TotalCO2Saved(ctx context.Context, userID int64) (float64, error)
}

// fence marks a key whose durable value just changed. It reads as a miss and
// blocks populates until it expires or a write replaces it.
var fence = []byte("!fence")

// StatCache is a read-through/write-through cache of user aggregates. Cache
// store failures are logged and never returned: the repository stays the
// source of truth.
//
// Writes overwrite (Refresh) or fence (Invalidate*) a key. Read-through
// populates only fill an empty key, so a read that started before a write
// cannot replace the newer value.
type StatCache struct {
	store Store
	repo  StatsRepository
	cfg   Config
	log   *zap.Logger
}

func NewStatCache(store Store, repo StatsRepository, cfg Config) *StatCache {
	if store == nil {
		store = NoopStore{}
	}
	return &StatCache{
		store: store,
		repo:  repo,
		cfg:   cfg.withDefaults(),
		log:   logger.Logger().Named("cache"),
	}
}

func statsKey(userID int64) string {
	return fmt.Sprintf("stats:%d", userID)
}

func co2Key(userID int64) string {
	return fmt.Sprintf("co2:%d", userID)
}

func missionsKey(userID int64, track model.Track) string {
	return fmt.Sprintf("missions:%d:%s", userID, track)
}

func (c *StatCache) Get(ctx context.Context, userID int64) (*model.UserStats, error) {
	key := statsKey(userID)

	var cached model.UserStats
	hit, err := c.load(ctx, key, &cached)
	if err != nil {
		c.log.Warn("stats cache unavailable, reading durable store",
			zap.Int64("user_id", userID), zap.Error(err))

		return c.repo.GetUserStats(ctx, userID)
	}
	if hit {
		return &cached, nil
	}

	stats, err := c.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.populate(ctx, key, stats, c.cfg.StatsTTL)
	return stats, nil
}

// Update writes the durable store first and then refreshes the cache entry.
// The level is derived from XP by the repository.
func (c *StatCache) Update(ctx context.Context, stats *model.UserStats) (*model.UserStats, error) {
	stored, err := c.repo.UpdateUserStats(ctx, stats)
	if err != nil {
		return nil, err
	}
	c.Refresh(ctx, stored)
	return stored, nil
}

// Refresh stores stats that were already persisted elsewhere.
func (c *StatCache) Refresh(ctx context.Context, stats *model.UserStats) {
	if stats == nil {
		return
	}
	c.save(ctx, statsKey(stats.UserID), stats, c.cfg.StatsTTL)
}

func (c *StatCache) CO2Saved(ctx context.Context, userID int64) (float64, error) {
	key := co2Key(userID)

	var cached float64
	hit, err := c.load(ctx, key, &cached)
	if err != nil {
		c.log.Warn("co2 cache unavailable, reading durable store",
			zap.Int64("user_id", userID), zap.Error(err))

		return c.repo.TotalCO2Saved(ctx, userID)
	}
	if hit {
		return cached, nil
	}

	total, err := c.repo.TotalCO2Saved(ctx, userID)
	if err != nil {
		return 0, err
	}
	c.populate(ctx, key, total, c.cfg.CO2TTL)
	return total, nil
}

func (c *StatCache) InvalidateCO2(ctx context.Context, userID int64) {
	c.fence(ctx, co2Key(userID))
}

// Invalidate fences every cached view of the user.
func (c *StatCache) Invalidate(ctx context.Context, userID int64) {
	keys := []string{statsKey(userID), co2Key(userID)}
	for _, track := range model.Tracks() {
		keys = append(keys, missionsKey(userID, track))
	}
	c.fence(ctx, keys...)
}

func (c *StatCache) GetMissions(ctx context.Context, userID int64, track model.Track) (*model.MissionList, bool) {
	var cached model.MissionList
	hit, err := c.load(ctx, missionsKey(userID, track), &cached)
	if err != nil {
		c.log.Debug("missions cache unavailable", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &cached, true
}

func (c *StatCache) SetMissions(ctx context.Context, userID int64, list *model.MissionList) {
	c.populate(ctx, missionsKey(userID, list.Track), list, c.cfg.MissionsTTL)
}

// DropMissions removes a list cached for an earlier period so the current
// one can be stored.
func (c *StatCache) DropMissions(ctx context.Context, userID int64, track model.Track) {
	c.evict(ctx, missionsKey(userID, track))
}

func (c *StatCache) InvalidateMissions(ctx context.Context, userID int64) {
	keys := make([]string, 0, 3)
	for _, track := range model.Tracks() {
		keys = append(keys, missionsKey(userID, track))
	}
	c.fence(ctx, keys...)
}

// load reports a hit, a miss, or a store failure.
func (c *StatCache) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return false, nil
		}
		return false, err
	}
	if bytes.Equal(raw, fence) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.evict(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *StatCache) save(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Error("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.log.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
}

// populate fills key only if nothing newer got there first.
func (c *StatCache) populate(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Error("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	stored, err := c.store.SetIfAbsent(ctx, key, raw, ttl)
	if err != nil {
		c.log.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if !stored {
		c.log.Debug("cache populate skipped, key was written concurrently", zap.String("key", key))
	}
}

func (c *StatCache) fence(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.store.Set(ctx, key, fence, c.cfg.FenceTTL); err != nil {
			c.log.Warn("failed to fence cache entry", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *StatCache) evict(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.log.Warn("failed to evict cache entries", zap.Strings("keys", keys), zap.Error(err))
	}
}
