// Package models defines user subscription and usage tracking fields.
package models

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierTrial   Tier = "trial"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// KnownTier reports whether s names one of the supported tiers.
func KnownTier(s string) bool {
	switch Tier(s) {
	case TierFree, TierTrial, TierBasic, TierPremium:
		return true
	}
	return false
}

type User struct {
	Auth0Sub             string    `db:"auth0_sub"`
	Email                string    `db:"email"`
	Name                 string    `db:"name"`
	SubscriptionTier     Tier      `db:"subscription_tier"`
	SubscriptionStatus   string    `db:"subscription_status"`
	StripeCustomerID     string    `db:"stripe_customer_id"`
	StripeSubscriptionID string    `db:"stripe_subscription_id"`
	AIUsageCount         int       `db:"ai_usage_count"`
	LastUsageReset       time.Time `db:"last_usage_reset"`
}
