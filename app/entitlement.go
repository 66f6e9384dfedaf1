// Package app gates AI-backed features by subscription tier.
package app

import (
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
)

// Feature names for AI-backed operations.
const (
	FeatureDocumentAnalysis   = "document_analysis"
	FeatureCaseStrategy       = "case_strategy"
	FeatureDocumentGeneration = "document_generation"
	FeatureCourtroomSimulator = "courtroom_simulator"
	FeatureAudioTranscription = "audio_transcription"
)

// featureTiers maps each feature to the tiers that satisfy it. Resolution is
// literal set membership, not a ranked comparison: a tier missing from the
// list is denied even if it outranks a listed one. Unmapped features require
// premium.
var featureTiers = map[string][]models.Tier{
	FeatureDocumentAnalysis:   {models.TierBasic, models.TierPremium},
	FeatureCaseStrategy:       {models.TierBasic, models.TierPremium},
	FeatureDocumentGeneration: {models.TierBasic, models.TierPremium},
	FeatureAudioTranscription: {models.TierBasic, models.TierPremium},
	FeatureCourtroomSimulator: {models.TierPremium},
}

// Entitlement is the outcome of a feature gate check. RequiredTier is the
// lowest listed tier for the feature, used to render the upgrade prompt when
// access is denied.
type Entitlement struct {
	Allowed      bool
	RequiredTier models.Tier
}

// ResolveEntitlement decides whether tier may use feature. Callers that could
// not resolve a user pass models.TierFree.
func ResolveEntitlement(feature string, tier models.Tier) Entitlement {
	required, ok := featureTiers[feature]
	if !ok || len(required) == 0 {
		required = []models.Tier{models.TierPremium}
	}
	ent := Entitlement{RequiredTier: required[0]}
	for _, t := range required {
		if t == tier {
			ent.Allowed = true
			break
		}
	}
	return ent
}
