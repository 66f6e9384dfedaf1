package app

import (
	"strings"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
)

// Plan binds a tier to its monthly AI-operation quota and the Stripe price
// lookup key sold for it. Quota values are part of the product contract;
// change them deliberately, not casually.
type Plan struct {
	Tier         models.Tier
	MonthlyQuota int
	Unlimited    bool
	LookupKey    string
}

var plans = map[models.Tier]Plan{
	models.TierFree:    {Tier: models.TierFree, MonthlyQuota: 5},
	models.TierTrial:   {Tier: models.TierTrial, MonthlyQuota: 25},
	models.TierBasic:   {Tier: models.TierBasic, MonthlyQuota: 100, LookupKey: "basic_monthly"},
	models.TierPremium: {Tier: models.TierPremium, Unlimited: true, LookupKey: "premium_monthly"},
}

// PlanForTier returns the plan for a tier, defaulting to free for anything
// unrecognized.
func PlanForTier(tier models.Tier) Plan {
	if p, ok := plans[tier]; ok {
		return p
	}
	return plans[models.TierFree]
}

// TierFromLookupKey maps a Stripe price lookup key (e.g. "basic_monthly") to
// its tier. Unknown or empty keys fall back to free, which is also the
// documented behavior for a subscription with no active price item.
func TierFromLookupKey(key string) models.Tier {
	name := strings.TrimSuffix(strings.TrimSpace(key), "_monthly")
	if models.KnownTier(name) {
		return models.Tier(name)
	}
	return models.TierFree
}
