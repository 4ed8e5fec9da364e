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

type vitalityRow struct {
	UserID        int64      `db:"user_id"`
	Value         int64      `db:"value"`
	LifetimeTotal int64      `db:"lifetime_total"`
	LastDecayDate *string    `db:"last_decay_date"`
	LastDecayAt   *time.Time `db:"last_decay_at"`
}

func (r *Repository) GetVitality(ctx context.Context, userID int64) (*model.Vitality, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Select("user_id", "value", "lifetime_total", "last_decay_date", "last_decay_at").
		From("vitality").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row vitalityRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vitality: %w", err)
	}

	return &model.Vitality{
		UserID:        row.UserID,
		Value:         row.Value,
		LifetimeTotal: row.LifetimeTotal,
		LastDecayDate: row.LastDecayDate,
		LastDecayAt:   row.LastDecayAt,
	}, nil
}

// creditVitalityWithTx adds amount to the user's vitality row, creating it
// when missing, and returns the resulting value.
func (r *Repository) creditVitalityWithTx(ctx context.Context, tx *sqlx.Tx, userID, amount int64) (int64, error) {
	query, args, err := r.sb.
		Insert("vitality").
		Columns("user_id", "value", "lifetime_total").
		Values(userID, amount, amount).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			value = vitality.value + excluded.value,
			lifetime_total = vitality.lifetime_total + excluded.lifetime_total`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build vitality upsert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to credit vitality: %w", err)
	}

	if r.vitalityCeiling > 0 {
		capQuery, capArgs, err := r.sb.
			Update("vitality").
			Set("value", r.vitalityCeiling).
			Where(squirrel.Eq{"user_id": userID}).
			Where(squirrel.Gt{"value": r.vitalityCeiling}).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, capQuery, capArgs...); err != nil {
			return 0, fmt.Errorf("failed to cap vitality: %w", err)
		}
	}

	valueQuery, valueArgs, err := r.sb.
		Select("value").
		From("vitality").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var value int64
	if err := tx.GetContext(ctx, &value, valueQuery, valueArgs...); err != nil {
		return 0, fmt.Errorf("failed to read vitality: %w", err)
	}
	return value, nil
}

// DecayAll subtracts amount from every vitality row not yet decayed on today,
// flooring at zero. Repeated calls on the same date affect no rows.
func (r *Repository) DecayAll(ctx context.Context, amount int64, today string, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := r.sb.
		Update("vitality").
		Set("value", squirrel.Expr("CASE WHEN value > ? THEN value - ? ELSE 0 END", amount, amount)).
		Set("last_decay_date", today).
		Set("last_decay_at", now.UTC()).
		Where(squirrel.Or{
			squirrel.Eq{"last_decay_date": nil},
			squirrel.Lt{"last_decay_date": today},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build decay query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to decay vitality: %w", err)
	}
	return result.RowsAffected()
}
