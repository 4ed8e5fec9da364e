package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ecoquest_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type missionDefinition struct {
	ID                  int64         `db:"id"`
	Track               string        `db:"track"`
	Type                string        `db:"mission_type"`
	Title               string        `db:"title"`
	Description         string        `db:"description"`
	TargetValue         float64       `db:"target_value"`
	DurationDays        int           `db:"duration_days"`
	RequiredActivityIDs pq.Int64Array `db:"required_activity_ids"`
	XPReward            int           `db:"xp_reward"`
	VitalityReward      int           `db:"vitality_reward"`
	MinLevel            int           `db:"min_level"`
	Difficulty          string        `db:"difficulty"`
}

func (d *missionDefinition) toModel() *model.MissionDefinition {
	return &model.MissionDefinition{
		ID:                  d.ID,
		Track:               model.CatalogTrack(d.Track),
		Type:                model.MissionType(d.Type),
		Title:               d.Title,
		Description:         d.Description,
		TargetValue:         d.TargetValue,
		DurationDays:        d.DurationDays,
		RequiredActivityIDs: []int64(d.RequiredActivityIDs),
		XPReward:            d.XPReward,
		VitalityReward:      d.VitalityReward,
		MinLevel:            d.MinLevel,
		Difficulty:          model.Difficulty(d.Difficulty),
	}
}

type missionInstance struct {
	ID             uuid.UUID  `db:"id"`
	UserID         int64      `db:"user_id"`
	DefinitionID   int64      `db:"definition_id"`
	Track          string     `db:"track"`
	PeriodKey      string     `db:"period_key"`
	Status         string     `db:"status"`
	ClaimedAt      *time.Time `db:"claimed_at"`
	XPReward       int        `db:"xp_reward"`
	VitalityReward int        `db:"vitality_reward"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (i *missionInstance) toModel() *model.MissionInstance {
	return &model.MissionInstance{
		ID:             i.ID,
		UserID:         i.UserID,
		DefinitionID:   i.DefinitionID,
		Track:          model.Track(i.Track),
		PeriodKey:      i.PeriodKey,
		Status:         model.MissionStatus(i.Status),
		ClaimedAt:      i.ClaimedAt,
		XPReward:       i.XPReward,
		VitalityReward: i.VitalityReward,
		CreatedAt:      i.CreatedAt,
	}
}

type persistentProgress struct {
	UserID       int64      `db:"user_id"`
	DefinitionID int64      `db:"definition_id"`
	Status       string     `db:"status"`
	ClaimedAt    *time.Time `db:"claimed_at"`
}

var definitionColumns = []string{
	"id", "track", "mission_type", "title", "description", "target_value", "duration_days",
	"required_activity_ids", "xp_reward", "vitality_reward", "min_level", "difficulty",
}

var instanceColumns = []string{
	"id", "user_id", "definition_id", "track", "period_key", "status", "claimed_at",
	"xp_reward", "vitality_reward", "created_at",
}

// UpsertDefinitions writes catalog rows, replacing rows with the same id.
func (r *Repository) UpsertDefinitions(ctx context.Context, defs []*model.MissionDefinition) error {
	if len(defs) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	builder := r.sb.Insert("mission_definitions").Columns(definitionColumns...)
	for _, d := range defs {
		required := pq.Int64Array{}
		if len(d.RequiredActivityIDs) > 0 {
			required = pq.Int64Array(d.RequiredActivityIDs)
		}
		builder = builder.Values(
			d.ID, string(d.Track), string(d.Type), d.Title, d.Description, d.TargetValue, d.DurationDays,
			required, d.XPReward, d.VitalityReward, d.MinLevel, string(d.Difficulty),
		)
	}

	query, args, err := builder.Suffix(`ON CONFLICT (id) DO UPDATE SET
		track = excluded.track,
		mission_type = excluded.mission_type,
		title = excluded.title,
		description = excluded.description,
		target_value = excluded.target_value,
		duration_days = excluded.duration_days,
		required_activity_ids = excluded.required_activity_ids,
		xp_reward = excluded.xp_reward,
		vitality_reward = excluded.vitality_reward,
		min_level = excluded.min_level,
		difficulty = excluded.difficulty`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build definitions upsert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert mission definitions: %w", err)
	}
	return nil
}

// ListDefinitions returns the catalog, optionally narrowed to one pool.
func (r *Repository) ListDefinitions(ctx context.Context, track model.CatalogTrack) ([]*model.MissionDefinition, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := r.sb.Select(definitionColumns...).From("mission_definitions").OrderBy("id")
	if track != "" {
		q = q.Where(squirrel.Eq{"track": string(track)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []missionDefinition
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list mission definitions: %w", err)
	}

	defs := make([]*model.MissionDefinition, len(rows))
	for i := range rows {
		defs[i] = rows[i].toModel()
	}
	return defs, nil
}

// InsertInstances creates instances, silently skipping any that already
// exist for the same (user, track, definition, period).
func (r *Repository) InsertInstances(ctx context.Context, instances []*model.MissionInstance) error {
	if len(instances) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	builder := r.sb.Insert("mission_instances").Columns(instanceColumns...)
	for _, in := range instances {
		builder = builder.Values(
			in.ID.String(), in.UserID, in.DefinitionID, string(in.Track), in.PeriodKey, string(in.Status),
			in.ClaimedAt, in.XPReward, in.VitalityReward, in.CreatedAt.UTC(),
		)
	}

	query, args, err := builder.
		Suffix("ON CONFLICT (user_id, track, definition_id, period_key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build instances insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert mission instances: %w", err)
	}
	return nil
}

func (r *Repository) ListInstances(ctx context.Context, userID int64, track model.Track, periodKey string) ([]*model.MissionInstance, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select(instanceColumns...).
		From("mission_instances").
		Where(squirrel.Eq{
			"user_id":    userID,
			"track":      string(track),
			"period_key": periodKey,
		}).
		OrderBy("definition_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []missionInstance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list mission instances: %w", err)
	}

	instances := make([]*model.MissionInstance, len(rows))
	for i := range rows {
		instances[i] = rows[i].toModel()
	}
	return instances, nil
}

// DeleteExpiredInstances removes daily instances keyed before dailyBefore and
// weekly instances keyed before weeklyBefore. A zero userID targets all users.
func (r *Repository) DeleteExpiredInstances(ctx context.Context, userID int64, dailyBefore, weeklyBefore string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	expired := squirrel.Or{
		squirrel.And{
			squirrel.Eq{"track": string(model.TrackDaily)},
			squirrel.Lt{"period_key": dailyBefore},
		},
		squirrel.And{
			squirrel.Eq{"track": string(model.TrackWeekly)},
			squirrel.Lt{"period_key": weeklyBefore},
		},
	}

	q := r.sb.Delete("mission_instances").Where(expired)
	if userID != 0 {
		q = q.Where(squirrel.Eq{"user_id": userID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired instances: %w", err)
	}
	return result.RowsAffected()
}

// EnsurePersistent creates a pending progress row per definition. Existing
// rows keep their status.
func (r *Repository) EnsurePersistent(ctx context.Context, userID int64, definitionIDs []int64) error {
	if len(definitionIDs) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	builder := r.sb.Insert("persistent_progress").Columns("user_id", "definition_id", "status")
	for _, id := range definitionIDs {
		builder = builder.Values(userID, id, string(model.StatusPending))
	}

	query, args, err := builder.Suffix("ON CONFLICT (user_id, definition_id) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("failed to build persistent progress insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to ensure persistent progress: %w", err)
	}
	return nil
}

func (r *Repository) ListPersistent(ctx context.Context, userID int64) ([]*model.PersistentProgress, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select("user_id", "definition_id", "status", "claimed_at").
		From("persistent_progress").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("definition_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []persistentProgress
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list persistent progress: %w", err)
	}

	progress := make([]*model.PersistentProgress, len(rows))
	for i, row := range rows {
		progress[i] = &model.PersistentProgress{
			UserID:       row.UserID,
			DefinitionID: row.DefinitionID,
			Status:       model.MissionStatus(row.Status),
			ClaimedAt:    row.ClaimedAt,
		}
	}
	return progress, nil
}

// GetClaimTarget resolves a mission reference owned by userID. A reference
// that does not parse, does not exist or belongs to someone else is
// ErrNotFound.
func (r *Repository) GetClaimTarget(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimTarget, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if ref.Track.Periodic() {
		return r.periodicTarget(ctx, userID, ref)
	}
	if ref.Track == model.TrackPersistent {
		return r.persistentTarget(ctx, userID, ref)
	}
	return nil, ErrNotFound
}

func (r *Repository) periodicTarget(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimTarget, error) {
	id, err := uuid.Parse(ref.ID)
	if err != nil {
		return nil, ErrNotFound
	}

	query, args, err := r.sb.
		Select(instanceColumns...).
		From("mission_instances").
		Where(squirrel.Eq{"id": id.String(), "user_id": userID, "track": string(ref.Track)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var in missionInstance
	if err := r.db.GetContext(ctx, &in, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mission instance: %w", err)
	}

	def, err := r.getDefinition(ctx, in.DefinitionID)
	if err != nil {
		return nil, err
	}

	return &model.ClaimTarget{
		Ref:            ref,
		UserID:         userID,
		Definition:     def,
		PeriodKey:      in.PeriodKey,
		Status:         model.MissionStatus(in.Status),
		XPReward:       in.XPReward,
		VitalityReward: in.VitalityReward,
	}, nil
}

func (r *Repository) persistentTarget(ctx context.Context, userID int64, ref model.MissionRef) (*model.ClaimTarget, error) {
	id, err := strconv.ParseInt(ref.ID, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	def, err := r.getDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.Track != model.CatalogPersistent {
		return nil, ErrNotFound
	}

	query, args, err := r.sb.
		Select("status").
		From("persistent_progress").
		Where(squirrel.Eq{"user_id": userID, "definition_id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	status := string(model.StatusPending)
	if err := r.db.GetContext(ctx, &status, query, args...); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get persistent progress: %w", err)
	}

	return &model.ClaimTarget{
		Ref:            ref,
		UserID:         userID,
		Definition:     def,
		Status:         model.MissionStatus(status),
		XPReward:       def.XPReward,
		VitalityReward: def.VitalityReward,
	}, nil
}

func (r *Repository) getDefinition(ctx context.Context, id int64) (*model.MissionDefinition, error) {
	query, args, err := r.sb.
		Select(definitionColumns...).
		From("mission_definitions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var def missionDefinition
	if err := r.db.GetContext(ctx, &def, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mission definition: %w", err)
	}
	return def.toModel(), nil
}

// CommitClaim marks the mission claimed and credits its rewards in one
// transaction. Only one of any number of concurrent calls for the same
// mission can flip the status; the rest see ErrAlreadyClaimed.
func (r *Repository) CommitClaim(ctx context.Context, c model.ClaimCommit) (*model.ClaimResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var result *model.ClaimResult
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.markClaimedWithTx(ctx, tx, c); err != nil {
			return err
		}

		stats, err := r.getStatsWithTx(ctx, tx, c.UserID)
		if err != nil {
			return err
		}

		oldXP := stats.TotalXP
		oldLevel := r.levelFor(oldXP)
		if c.Ref.Track == model.TrackPersistent && oldLevel < c.MinLevel {
			return ErrInsufficientLevel
		}

		stats.TotalXP = oldXP + int64(c.XPReward)

		var newVitality int64
		if c.Ref.Track == model.TrackPersistent {
			stats.Vitality = int(model.Clamp(int64(stats.Vitality)+int64(c.VitalityReward), r.vitalityMax))
			newVitality = int64(stats.Vitality)
		} else {
			newVitality, err = r.creditVitalityWithTx(ctx, tx, c.UserID, int64(c.VitalityReward))
			if err != nil {
				return err
			}
		}

		if err := r.writeStatsWithTx(ctx, tx, stats); err != nil {
			return err
		}

		result = &model.ClaimResult{
			XPAdded:       c.XPReward,
			VitalityAdded: c.VitalityReward,
			OldXP:         oldXP,
			OldLevel:      oldLevel,
			NewXP:         stats.TotalXP,
			NewLevel:      stats.CurrentLevel,
			LeveledUp:     stats.CurrentLevel > oldLevel,
			NewVitality:   newVitality,
			Stats:         stats.toModel(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) markClaimedWithTx(ctx context.Context, tx *sqlx.Tx, c model.ClaimCommit) error {
	claimedAt := c.ClaimedAt.UTC()

	var (
		update squirrel.UpdateBuilder
		check  squirrel.SelectBuilder
	)
	switch {
	case c.Ref.Track.Periodic():
		id, err := uuid.Parse(c.Ref.ID)
		if err != nil {
			return ErrNotFound
		}
		owner := squirrel.Eq{"id": id.String(), "user_id": c.UserID, "track": string(c.Ref.Track)}
		update = r.sb.Update("mission_instances").
			Set("status", string(model.StatusClaimed)).
			Set("claimed_at", claimedAt).
			Where(owner).
			Where(squirrel.Eq{"status": string(model.StatusPending)})
		check = r.sb.Select("status").From("mission_instances").Where(owner)

	case c.Ref.Track == model.TrackPersistent:
		id, err := strconv.ParseInt(c.Ref.ID, 10, 64)
		if err != nil {
			return ErrNotFound
		}
		if err := r.ensureProgressWithTx(ctx, tx, c.UserID, id); err != nil {
			return err
		}
		owner := squirrel.Eq{"user_id": c.UserID, "definition_id": id}
		update = r.sb.Update("persistent_progress").
			Set("status", string(model.StatusClaimed)).
			Set("claimed_at", claimedAt).
			Where(owner).
			Where(squirrel.Eq{"status": string(model.StatusPending)})
		check = r.sb.Select("status").From("persistent_progress").Where(owner)

	default:
		return ErrNotFound
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build claim update query: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update mission status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	checkQuery, checkArgs, err := check.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status check query: %w", err)
	}

	var status string
	if err := tx.GetContext(ctx, &status, checkQuery, checkArgs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check mission status: %w", err)
	}
	return ErrAlreadyClaimed
}

func (r *Repository) ensureProgressWithTx(ctx context.Context, tx *sqlx.Tx, userID, definitionID int64) error {
	query, args, err := r.sb.
		Insert("persistent_progress").
		Columns("user_id", "definition_id", "status").
		Values(userID, definitionID, string(model.StatusPending)).
		Suffix("ON CONFLICT (user_id, definition_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to ensure persistent progress: %w", err)
	}
	return nil
}
