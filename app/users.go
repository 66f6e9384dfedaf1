// Package app provides user persistence helpers for authenticated requests.
package app

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
)

// UpsertUserFromClaims creates a user row if it does not already exist. New
// users start on the free tier with a fresh usage period.
func UpsertUserFromClaims(ctx context.Context, claims *auth.Claims) error {
	if db == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}

	email := claims.Email
	if email == "" {
		email = readStringClaim(claims.Raw, "email")
	}
	name := claims.Name
	if name == "" {
		name = readStringClaim(claims.Raw, "name")
	}

	const q = `
		INSERT INTO users (auth0_sub, email, name, last_login, subscription_tier, ai_usage_count, last_usage_reset)
		VALUES ($1, $2, $3, now(), $4, $5, $6)
		ON CONFLICT (auth0_sub) DO NOTHING;
	`

	_, err := db.ExecContext(
		ctx,
		q,
		claims.Subject,
		nullIfEmpty(email),
		nullIfEmpty(name),
		models.TierFree,
		0,
		monthStartUTC(time.Now()),
	)
	return err
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func getUserByAuth0Sub(ctx context.Context, auth0Sub string) (models.User, error) {
	if db == nil {
		return models.User{Auth0Sub: auth0Sub, SubscriptionTier: models.TierFree}, nil
	}
	var user models.User
	var status, customerID, subscriptionID sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT subscription_tier, subscription_status, stripe_customer_id, stripe_subscription_id,
		       ai_usage_count, last_usage_reset
		FROM users
		WHERE auth0_sub = $1;
	`, auth0Sub).Scan(
		&user.SubscriptionTier,
		&status,
		&customerID,
		&subscriptionID,
		&user.AIUsageCount,
		&user.LastUsageReset,
	)
	if err != nil {
		return models.User{}, err
	}
	user.Auth0Sub = auth0Sub
	user.SubscriptionStatus = status.String
	user.StripeCustomerID = customerID.String
	user.StripeSubscriptionID = subscriptionID.String
	return user, nil
}
