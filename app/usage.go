// Package app enforces monthly AI-operation limits for authenticated users.
package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
)

type quotaError struct {
	Limit int
	Used  int
}

func (e quotaError) Error() string {
	return "monthly quota exceeded"
}

// IsQuotaExceeded reports whether err is a quota denial from CheckQuota.
func IsQuotaExceeded(err error) bool {
	var qe quotaError
	return errors.As(err, &qe)
}

func monthStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckQuota loads the user and verifies one more AI operation fits within
// the tier's monthly quota. A counter stamped before the current month start
// is stale and is zeroed inside the same transaction before the check. The
// check consumes nothing; call ConsumeUsage only after the operation has
// produced a usable result, so failed provider calls never burn quota.
func CheckQuota(ctx context.Context, auth0Sub string) (models.User, error) {
	if db == nil {
		return models.User{}, nil
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()

	user, err := getUserForUpdate(ctx, tx, auth0Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := insertDefaultUser(ctx, tx, auth0Sub); err != nil {
				return models.User{}, err
			}
			user, err = getUserForUpdate(ctx, tx, auth0Sub)
		}
		if err != nil {
			return models.User{}, err
		}
	}

	currentMonthStart := monthStartUTC(time.Now())
	if user.LastUsageReset.Before(currentMonthStart) {
		user.AIUsageCount = 0
		user.LastUsageReset = currentMonthStart
		if err := updateUserUsage(ctx, tx, auth0Sub, user.AIUsageCount, user.LastUsageReset); err != nil {
			return models.User{}, err
		}
	}

	plan := PlanForTier(user.SubscriptionTier)
	if !plan.Unlimited && user.AIUsageCount >= plan.MonthlyQuota {
		return user, quotaError{Limit: plan.MonthlyQuota, Used: user.AIUsageCount}
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// ConsumeUsage records one completed AI operation. The increment is a single
// server-side UPDATE, never read-modify-write, so concurrent operations by
// the same user cannot under-count.
func ConsumeUsage(ctx context.Context, auth0Sub string) error {
	if db == nil {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		UPDATE users
		SET ai_usage_count = ai_usage_count + 1
		WHERE auth0_sub = $1;
	`, auth0Sub)
	return err
}

// ResetStaleUsage zeroes every counter whose period predates the current
// month start. The usage-reset job runs this on a schedule; users who are
// never swept still self-correct via the stale check in CheckQuota.
func ResetStaleUsage(ctx context.Context) (int64, error) {
	if db == nil {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE users
		SET ai_usage_count = 0, last_usage_reset = $1
		WHERE last_usage_reset < $1;
	`, monthStartUTC(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func getUserForUpdate(ctx context.Context, tx *sql.Tx, auth0Sub string) (models.User, error) {
	var user models.User
	err := tx.QueryRowContext(ctx, `
		SELECT subscription_tier, ai_usage_count, last_usage_reset
		FROM users
		WHERE auth0_sub = $1
		FOR UPDATE;
	`, auth0Sub).Scan(&user.SubscriptionTier, &user.AIUsageCount, &user.LastUsageReset)
	if err != nil {
		return models.User{}, err
	}
	user.Auth0Sub = auth0Sub
	return user, nil
}

func insertDefaultUser(ctx context.Context, tx *sql.Tx, auth0Sub string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (auth0_sub, subscription_tier, ai_usage_count, last_usage_reset)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (auth0_sub) DO NOTHING;
	`, auth0Sub, models.TierFree, 0, monthStartUTC(time.Now()))
	return err
}

func updateUserUsage(ctx context.Context, tx *sql.Tx, auth0Sub string, used int, start time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET ai_usage_count = $1, last_usage_reset = $2
		WHERE auth0_sub = $3;
	`, used, start, auth0Sub)
	return err
}
