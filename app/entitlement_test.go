package app

import (
	"testing"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
)

func TestResolveEntitlement(t *testing.T) {
	cases := []struct {
		name     string
		feature  string
		tier     models.Tier
		allowed  bool
		required models.Tier
	}{
		{"free denied document analysis", FeatureDocumentAnalysis, models.TierFree, false, models.TierBasic},
		{"trial denied document analysis", FeatureDocumentAnalysis, models.TierTrial, false, models.TierBasic},
		{"basic allowed document analysis", FeatureDocumentAnalysis, models.TierBasic, true, models.TierBasic},
		{"premium allowed document analysis", FeatureDocumentAnalysis, models.TierPremium, true, models.TierBasic},
		{"basic allowed case strategy", FeatureCaseStrategy, models.TierBasic, true, models.TierBasic},
		{"basic allowed document generation", FeatureDocumentGeneration, models.TierBasic, true, models.TierBasic},
		{"basic allowed audio transcription", FeatureAudioTranscription, models.TierBasic, true, models.TierBasic},
		{"basic denied simulator", FeatureCourtroomSimulator, models.TierBasic, false, models.TierPremium},
		{"premium allowed simulator", FeatureCourtroomSimulator, models.TierPremium, true, models.TierPremium},
		{"unmapped feature requires premium", "bulk_export", models.TierBasic, false, models.TierPremium},
		{"unmapped feature allowed for premium", "bulk_export", models.TierPremium, true, models.TierPremium},
		{"unknown tier denied", FeatureDocumentAnalysis, models.Tier("enterprise"), false, models.TierBasic},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ent := ResolveEntitlement(tc.feature, tc.tier)
			if ent.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v", ent.Allowed, tc.allowed)
			}
			if ent.RequiredTier != tc.required {
				t.Fatalf("required tier = %q, want %q", ent.RequiredTier, tc.required)
			}
		})
	}
}

// Membership is literal, not ranked: premium must be listed explicitly to pass
// a gate, and listing basic does not imply anything above it.
func TestResolveEntitlementIsSetMembership(t *testing.T) {
	for feature, tiers := range featureTiers {
		for _, tier := range []models.Tier{models.TierFree, models.TierTrial, models.TierBasic, models.TierPremium} {
			listed := false
			for _, allowed := range tiers {
				if allowed == tier {
					listed = true
				}
			}
			if got := ResolveEntitlement(feature, tier).Allowed; got != listed {
				t.Fatalf("feature %q tier %q: allowed = %v, want %v", feature, tier, got, listed)
			}
		}
	}
}

func TestPlanForTier(t *testing.T) {
	cases := []struct {
		tier      models.Tier
		quota     int
		unlimited bool
	}{
		{models.TierFree, 5, false},
		{models.TierTrial, 25, false},
		{models.TierBasic, 100, false},
		{models.TierPremium, 0, true},
		{models.Tier("unknown"), 5, false},
	}
	for _, tc := range cases {
		plan := PlanForTier(tc.tier)
		if plan.Unlimited != tc.unlimited {
			t.Fatalf("tier %q: unlimited = %v, want %v", tc.tier, plan.Unlimited, tc.unlimited)
		}
		if !plan.Unlimited && plan.MonthlyQuota != tc.quota {
			t.Fatalf("tier %q: quota = %d, want %d", tc.tier, plan.MonthlyQuota, tc.quota)
		}
	}
}

func TestTierFromLookupKey(t *testing.T) {
	cases := []struct {
		key  string
		want models.Tier
	}{
		{"basic_monthly", models.TierBasic},
		{"premium_monthly", models.TierPremium},
		{" premium_monthly ", models.TierPremium},
		{"enterprise_monthly", models.TierFree},
		{"", models.TierFree},
	}
	for _, tc := range cases {
		if got := TierFromLookupKey(tc.key); got != tc.want {
			t.Fatalf("TierFromLookupKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
