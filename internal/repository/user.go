package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ecoquest_miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type User struct {
	UserID           int64     `db:"user_id"`
	Username         string    `db:"username"`
	RegistrationDate time.Time `db:"registration_date"`
	AuthDate         time.Time `db:"last_auth_date"`
}

type userStats struct {
	UserID       int64   `db:"user_id"`
	TotalXP      int64   `db:"total_xp"`
	CurrentLevel int     `db:"current_level"`
	Vitality     int     `db:"vitality"`
	Streak       int     `db:"streak"`
	LastLogDate  *string `db:"last_log_date"`
}

func (s *userStats) toModel() *model.UserStats {
	return &model.UserStats{
		UserID:       s.UserID,
		TotalXP:      s.TotalXP,
		CurrentLevel: s.CurrentLevel,
		Vitality:     s.Vitality,
		Streak:       s.Streak,
		LastLogDate:  s.LastLogDate,
	}
}

type leaderboardRow struct {
	UserID       int64  `db:"user_id"`
	Username     string `db:"username"`
	TotalXP      int64  `db:"total_xp"`
	CurrentLevel int    `db:"current_level"`
	Streak       int    `db:"streak"`
}

var statsColumns = []string{"user_id", "total_xp", "current_level", "vitality", "streak", "last_log_date"}

// CreateUser registers the user together with a level 1 stats row and an
// empty vitality row.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := r.sb.
			Insert("users").
			SetMap(map[string]interface{}{
				"user_id":           user.UserID,
				"username":          user.Username,
				"registration_date": user.RegistrationDate.UTC(),
				"last_auth_date":    user.AuthDate.UTC(),
			}).
			Suffix("ON CONFLICT (user_id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build user insert query: %w", err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return ErrAlreadyExists
		}

		statsQuery, statsArgs, err := r.sb.
			Insert("user_stats").
			SetMap(map[string]interface{}{
				"user_id":       user.UserID,
				"total_xp":      0,
				"current_level": r.levelFor(0),
				"vitality":      0,
				"streak":        0,
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build stats insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, statsQuery, statsArgs...); err != nil {
			return fmt.Errorf("failed to insert user stats: %w", err)
		}

		vitalityQuery, vitalityArgs, err := r.sb.
			Insert("vitality").
			Columns("user_id", "value", "lifetime_total").
			Values(user.UserID, 0, 0).
			Suffix("ON CONFLICT (user_id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build vitality insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, vitalityQuery, vitalityArgs...); err != nil {
			return fmt.Errorf("failed to insert vitality: %w", err)
		}

		return nil
	})
}

func (r *Repository) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select("user_id", "username", "registration_date", "last_auth_date").
		From("users").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var user User
	err = r.db.GetContext(ctx, &user, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &model.User{
		UserID:           user.UserID,
		Username:         user.Username,
		RegistrationDate: user.RegistrationDate,
		AuthDate:         user.AuthDate,
	}, nil
}

func (r *Repository) UpdateAuthDate(ctx context.Context, userID int64, username string, authDate time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Update("users").
		Set("username", username).
		Set("last_auth_date", authDate.UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetTopUsers(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select("u.user_id", "u.username", "s.total_xp", "s.current_level", "s.streak").
		From("users u").
		Join("user_stats s ON s.user_id = u.user_id").
		OrderBy("s.total_xp DESC", "u.user_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard query: %w", err)
	}

	var rows []leaderboardRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}

	entries := make([]*model.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = &model.LeaderboardEntry{
			UserID:       row.UserID,
			Username:     row.Username,
			TotalXP:      row.TotalXP,
			CurrentLevel: row.CurrentLevel,
			Streak:       row.Streak,
		}
	}
	return entries, nil
}

func (r *Repository) GetUserStats(ctx context.Context, userID int64) (*model.UserStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select(statsColumns...).
		From("user_stats").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var stats userStats
	err = r.db.GetContext(ctx, &stats, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stats.toModel(), nil
}

func (r *Repository) getStatsWithTx(ctx context.Context, tx *sqlx.Tx, userID int64) (*userStats, error) {
	query, args, err := r.lockRow(r.sb.
		Select(statsColumns...).
		From("user_stats").
		Where(squirrel.Eq{"user_id": userID})).
		ToSql()
	if err != nil {
		return nil, err
	}

	var stats userStats
	err = tx.GetContext(ctx, &stats, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// writeStatsWithTx persists XP, vitality and streak. The level is always
// derived from the XP written.
func (r *Repository) writeStatsWithTx(ctx context.Context, tx *sqlx.Tx, stats *userStats) error {
	stats.CurrentLevel = r.levelFor(stats.TotalXP)
	stats.Vitality = int(model.Clamp(int64(stats.Vitality), r.vitalityMax))

	query, args, err := r.sb.
		Update("user_stats").
		SetMap(map[string]interface{}{
			"total_xp":      stats.TotalXP,
			"current_level": stats.CurrentLevel,
			"vitality":      stats.Vitality,
			"streak":        stats.Streak,
			"last_log_date": stats.LastLogDate,
		}).
		Where(squirrel.Eq{"user_id": stats.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build stats update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserStats writes the aggregate and returns the stored row. The
// supplied CurrentLevel is ignored.
func (r *Repository) UpdateUserStats(ctx context.Context, stats *model.UserStats) (*model.UserStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row := &userStats{
		UserID:      stats.UserID,
		TotalXP:     stats.TotalXP,
		Vitality:    stats.Vitality,
		Streak:      stats.Streak,
		LastLogDate: stats.LastLogDate,
	}
	if row.TotalXP < 0 {
		row.TotalXP = 0
	}

	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		return r.writeStatsWithTx(ctx, tx, row)
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *Repository) TotalCO2Saved(ctx context.Context, userID int64) (float64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select("COALESCE(SUM(carbon_saved), 0)").
		From("activity_logs").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to sum carbon saved: %w", err)
	}
	return total, nil
}
