package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/period"
	"ecoquest_miniapp/internal/progress"
	"ecoquest_miniapp/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Quota is the number of definitions drawn per difficulty.
type Quota map[model.Difficulty]int

func (q Quota) total() int {
	var n int
	for _, v := range q {
		n += v
	}
	return n
}

type MissionConfig struct {
	Daily  Quota `mapstructure:"daily"`
	Weekly Quota `mapstructure:"weekly"`
}

func DefaultMissionConfig() MissionConfig {
	return MissionConfig{
		Daily: Quota{
			model.DifficultyEasy:   4,
			model.DifficultyMedium: 1,
		},
		Weekly: Quota{
			model.DifficultyEasy:   2,
			model.DifficultyMedium: 4,
			model.DifficultyHard:   3,
			model.DifficultyExpert: 1,
		},
	}
}

func (c MissionConfig) withDefaults() MissionConfig {
	defaults := DefaultMissionConfig()
	if c.Daily.total() == 0 {
		c.Daily = defaults.Daily
	}
	if c.Weekly.total() == 0 {
		c.Weekly = defaults.Weekly
	}
	return c
}

type MissionService struct {
	repo     MissionRepository
	stats    StatsCache
	calc     *progress.Calculator
	calendar *period.Calendar
	cfg      MissionConfig
	log      *zap.Logger
}

func NewMissionService(
	repo MissionRepository,
	stats StatsCache,
	calc *progress.Calculator,
	calendar *period.Calendar,
	cfg MissionConfig,
) *MissionService {
	return &MissionService{
		repo:     repo,
		stats:    stats,
		calc:     calc,
		calendar: calendar,
		cfg:      cfg.withDefaults(),
		log:      logger.Logger().Named("missions"),
	}
}

func (s *MissionService) quota(track model.Track) Quota {
	if track == model.TrackWeekly {
		return s.cfg.Weekly
	}
	return s.cfg.Daily
}

// EnsureInstances creates the user's instance set for the current period
// if it does not exist yet. Concurrent callers derive the same selection,
// and the store keeps one instance per definition and period.
func (s *MissionService) EnsureInstances(ctx context.Context, userID int64, track model.Track, now time.Time) ([]*model.MissionInstance, error) {
	if track == model.TrackPersistent {
		return nil, s.ensurePersistent(ctx, userID)
	}
	if !track.Periodic() {
		return nil, fmt.Errorf("%w: unknown track %q", ErrValidation, track)
	}

	key := s.calendar.Key(track, now)
	existing, err := s.repo.ListInstances(ctx, userID, track, key)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	pool, err := s.repo.ListDefinitions(ctx, model.CatalogPeriodic)
	if err != nil {
		return nil, mapRepoError(err)
	}

	selected := s.selectDefinitions(userID, track, key, pool)
	if len(selected) == 0 {
		s.log.Warn("no eligible definitions for track", zap.String("track", string(track)))
		return nil, nil
	}

	instances := make([]*model.MissionInstance, len(selected))
	for i, def := range selected {
		instances[i] = &model.MissionInstance{
			ID:             uuid.New(),
			UserID:         userID,
			DefinitionID:   def.ID,
			Track:          track,
			PeriodKey:      key,
			Status:         model.StatusPending,
			XPReward:       def.XPReward,
			VitalityReward: def.VitalityReward,
			CreatedAt:      now,
		}
	}
	if err := s.repo.InsertInstances(ctx, instances); err != nil {
		return nil, mapRepoError(err)
	}

	s.log.Debug("created mission instances",
		zap.Int64("user_id", userID),
		zap.String("track", string(track)),
		zap.String("period_key", key),
		zap.Int("count", len(instances)),
	)

	// Re-read so a concurrent winner's rows are what we return.
	stored, err := s.repo.ListInstances(ctx, userID, track, key)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return stored, nil
}

func (s *MissionService) ensurePersistent(ctx context.Context, userID int64) error {
	defs, err := s.repo.ListDefinitions(ctx, model.CatalogPersistent)
	if err != nil {
		return mapRepoError(err)
	}
	ids := make([]int64, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return mapRepoError(s.repo.EnsurePersistent(ctx, userID, ids))
}

// eligible reports whether def fits in the track's period.
func (s *MissionService) eligible(def *model.MissionDefinition, track model.Track) bool {
	days := period.Days(track)
	if !s.calc.Supports(def.Type) {
		return false
	}
	if def.DurationDays > days {
		return false
	}
	return s.calc.MinWindowDays(def.Type) <= days
}

// selectDefinitions draws the quota per difficulty with a shuffle seeded by
// (user, track, period key).
func (s *MissionService) selectDefinitions(userID int64, track model.Track, key string, pool []*model.MissionDefinition) []*model.MissionDefinition {
	byDifficulty := make(map[model.Difficulty][]*model.MissionDefinition)
	for _, def := range pool {
		if def.Track != model.CatalogPeriodic || !s.eligible(def, track) {
			continue
		}
		byDifficulty[def.Difficulty] = append(byDifficulty[def.Difficulty], def)
	}

	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s|%s", userID, track, key)
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	quota := s.quota(track)
	var selected []*model.MissionDefinition
	for _, difficulty := range model.Difficulties() {
		want := quota[difficulty]
		candidates := byDifficulty[difficulty]
		if want <= 0 || len(candidates) == 0 {
			continue
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})

		if want > len(candidates) {
			s.log.Warn("catalog cannot fill difficulty quota",
				zap.String("track", string(track)),
				zap.String("difficulty", string(difficulty)),
				zap.Int("want", want),
				zap.Int("have", len(candidates)),
			)
			want = len(candidates)
		}
		selected = append(selected, candidates[:want]...)
	}
	return selected
}

// Cleanup drops the user's instances whose period has passed.
func (s *MissionService) Cleanup(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.repo.DeleteExpiredInstances(ctx, userID, s.calendar.Today(now), s.calendar.WeekStart(now))
	return mapRepoError(err)
}

// CleanupAll is Cleanup for every user.
func (s *MissionService) CleanupAll(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpiredInstances(ctx, 0, s.calendar.Today(now), s.calendar.WeekStart(now))
	if err != nil {
		return 0, mapRepoError(err)
	}
	return deleted, nil
}

// ListMissions returns the track's missions with their current progress.
func (s *MissionService) ListMissions(ctx context.Context, userID int64, track model.Track, now time.Time) (*model.MissionList, error) {
	key := s.calendar.Key(track, now)
	if cached, ok := s.stats.GetMissions(ctx, userID, track); ok {
		if cached.PeriodKey == key {
			cached.SecondsUntilReset = s.calendar.SecondsUntilReset(track, now)
			return cached, nil
		}
		s.stats.DropMissions(ctx, userID, track)
	}

	var (
		list *model.MissionList
		err  error
	)
	switch {
	case track.Periodic():
		list, err = s.listPeriodic(ctx, userID, track, now)
	case track == model.TrackPersistent:
		list, err = s.listPersistent(ctx, userID, now)
	default:
		return nil, fmt.Errorf("%w: unknown track %q", ErrValidation, track)
	}
	if err != nil {
		return nil, err
	}

	s.stats.SetMissions(ctx, userID, list)
	return list, nil
}

// ListAll fetches every track concurrently, in model.Tracks order.
func (s *MissionService) ListAll(ctx context.Context, userID int64, now time.Time) ([]*model.MissionList, error) {
	tracks := model.Tracks()
	lists := make([]*model.MissionList, len(tracks))

	g, gctx := errgroup.WithContext(ctx)
	for i, track := range tracks {
		g.Go(func() error {
			list, err := s.ListMissions(gctx, userID, track, now)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (s *MissionService) listPeriodic(ctx context.Context, userID int64, track model.Track, now time.Time) (*model.MissionList, error) {
	if err := s.Cleanup(ctx, userID, now); err != nil {
		return nil, err
	}

	instances, err := s.EnsureInstances(ctx, userID, track, now)
	if err != nil {
		return nil, err
	}

	defs, err := s.repo.ListDefinitions(ctx, model.CatalogPeriodic)
	if err != nil {
		return nil, mapRepoError(err)
	}
	byID := make(map[int64]*model.MissionDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	from, to := s.calendar.Window(track, now)
	agg, err := s.repo.AggregateLogs(ctx, userID, from, to)
	if err != nil {
		return nil, mapRepoError(err)
	}

	list := &model.MissionList{
		Track:             track,
		PeriodKey:         s.calendar.Key(track, now),
		Missions:          make([]model.MissionView, 0, len(instances)),
		SecondsUntilReset: s.calendar.SecondsUntilReset(track, now),
	}
	for _, in := range instances {
		def, ok := byID[in.DefinitionID]
		if !ok {
			s.log.Warn("instance references unknown definition",
				zap.String("instance_id", in.ID.String()), zap.Int64("definition_id", in.DefinitionID))
			continue
		}

		view, err := s.view(def, agg)
		if err != nil {
			return nil, err
		}
		view.Ref = model.MissionRef{Track: track, ID: in.ID.String()}
		view.PeriodKey = in.PeriodKey
		view.Status = in.Status
		view.ClaimedAt = in.ClaimedAt
		view.XPReward = in.XPReward
		view.VitalityReward = in.VitalityReward
		list.Missions = append(list.Missions, view)
	}
	return list, nil
}

func (s *MissionService) listPersistent(ctx context.Context, userID int64, now time.Time) (*model.MissionList, error) {
	if _, err := s.EnsureInstances(ctx, userID, model.TrackPersistent, now); err != nil {
		return nil, err
	}

	stats, err := s.stats.Get(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}

	defs, err := s.repo.ListDefinitions(ctx, model.CatalogPersistent)
	if err != nil {
		return nil, mapRepoError(err)
	}

	rows, err := s.repo.ListPersistent(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	progressByID := make(map[int64]*model.PersistentProgress, len(rows))
	for _, p := range rows {
		progressByID[p.DefinitionID] = p
	}

	from, to := s.calendar.Window(model.TrackPersistent, now)
	agg, err := s.repo.AggregateLogs(ctx, userID, from, to)
	if err != nil {
		return nil, mapRepoError(err)
	}

	list := &model.MissionList{
		Track:    model.TrackPersistent,
		Missions: make([]model.MissionView, 0, len(defs)),
	}
	for _, def := range defs {
		view, err := s.view(def, agg)
		if err != nil {
			return nil, err
		}
		view.Ref = model.MissionRef{Track: model.TrackPersistent, ID: strconv.FormatInt(def.ID, 10)}
		view.Status = model.StatusPending
		if p, ok := progressByID[def.ID]; ok {
			view.Status = p.Status
			view.ClaimedAt = p.ClaimedAt
		}
		view.XPReward = def.XPReward
		view.VitalityReward = def.VitalityReward
		view.Locked = stats.CurrentLevel < def.MinLevel
		list.Missions = append(list.Missions, view)
	}
	return list, nil
}

func (s *MissionService) view(def *model.MissionDefinition, agg *model.LogAggregate) (model.MissionView, error) {
	res, err := s.calc.Progress(def, agg)
	if err != nil {
		return model.MissionView{}, err
	}
	return model.MissionView{
		Definition:   def,
		Progress:     res.Value,
		IsCompleted:  res.Complete,
		Percentage:   res.Percentage,
		ProgressText: res.Text,
	}, nil
}
