package repository

import (
	"context"
	"fmt"

	"ecoquest_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type activityTotalsRow struct {
	ActivityID     int64   `db:"activity_id"`
	InputValue     float64 `db:"input_value"`
	CarbonSaved    float64 `db:"carbon_saved"`
	CarbonProduced float64 `db:"carbon_produced"`
	Count          int64   `db:"cnt"`
}

type dayTotalRow struct {
	LogDate     string  `db:"log_date"`
	CarbonSaved float64 `db:"carbon_saved"`
}

// InsertActivity appends a log entry and advances the user's streak in the
// same transaction. It returns the stats as stored.
func (r *Repository) InsertActivity(ctx context.Context, entry *model.ActivityLog) (*model.UserStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stored *model.UserStats
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		stats, err := r.getStatsWithTx(ctx, tx, entry.UserID)
		if err != nil {
			return err
		}

		query, args, err := r.sb.
			Insert("activity_logs").
			SetMap(map[string]interface{}{
				"id":              entry.ID.String(),
				"user_id":         entry.UserID,
				"activity_id":     entry.ActivityID,
				"input_value":     entry.InputValue,
				"carbon_saved":    entry.CarbonSaved,
				"carbon_produced": entry.CarbonProduced,
				"log_date":        entry.LogDate,
				"created_at":      entry.CreatedAt.UTC(),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build activity insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert activity log: %w", err)
		}

		// Backdated entries never move the streak.
		if stats.LastLogDate == nil || *stats.LastLogDate <= entry.LogDate {
			stats.Streak = model.NextStreak(stats.Streak, stats.LastLogDate, entry.LogDate)
			logDate := entry.LogDate
			stats.LastLogDate = &logDate
		}

		if err := r.writeStatsWithTx(ctx, tx, stats); err != nil {
			return err
		}
		stored = stats.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// AggregateLogs summarizes a user's logs dated within [from, to].
func (r *Repository) AggregateLogs(ctx context.Context, userID int64, from, to string) (*model.LogAggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	window := squirrel.And{
		squirrel.Eq{"user_id": userID},
		squirrel.GtOrEq{"log_date": from},
		squirrel.LtOrEq{"log_date": to},
	}

	totalsQuery, totalsArgs, err := r.sb.
		Select(
			"activity_id",
			"SUM(input_value) AS input_value",
			"SUM(carbon_saved) AS carbon_saved",
			"SUM(carbon_produced) AS carbon_produced",
			"COUNT(*) AS cnt",
		).
		From("activity_logs").
		Where(window).
		GroupBy("activity_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build totals query: %w", err)
	}

	var totals []activityTotalsRow
	if err := r.db.SelectContext(ctx, &totals, totalsQuery, totalsArgs...); err != nil {
		return nil, fmt.Errorf("failed to aggregate activity logs: %w", err)
	}

	daysQuery, daysArgs, err := r.sb.
		Select("log_date", "SUM(carbon_saved) AS carbon_saved").
		From("activity_logs").
		Where(window).
		GroupBy("log_date").
		OrderBy("log_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build day totals query: %w", err)
	}

	var days []dayTotalRow
	if err := r.db.SelectContext(ctx, &days, daysQuery, daysArgs...); err != nil {
		return nil, fmt.Errorf("failed to aggregate log days: %w", err)
	}

	agg := model.NewLogAggregate(from, to)
	for _, t := range totals {
		agg.ByActivity[t.ActivityID] = model.ActivityTotals{
			InputValue:     t.InputValue,
			CarbonSaved:    t.CarbonSaved,
			CarbonProduced: t.CarbonProduced,
			Count:          t.Count,
		}
	}
	agg.Days = make([]model.DayTotal, len(days))
	for i, d := range days {
		agg.Days[i] = model.DayTotal{Date: d.LogDate, CarbonSaved: d.CarbonSaved}
	}
	return agg, nil
}
