// AI-backed feature endpoints. Every handler runs the same gauntlet: resolve
// the user, check the feature gate, check the monthly meter, call the
// provider, persist the result, and only then consume quota.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	"github.com/gin-gonic/gin"
)

const aiRequestTimeout = 90 * time.Second

var analysisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"ai_summary": {"type": "string"},
		"key_entities": {
			"type": "object",
			"properties": {
				"people": {"type": "array", "items": {"type": "object", "properties": {"name": {"type": "string"}, "role": {"type": "string"}}}},
				"dates": {"type": "array", "items": {"type": "object", "properties": {"date": {"type": "string"}, "context": {"type": "string"}}}},
				"locations": {"type": "array", "items": {"type": "object", "properties": {"location": {"type": "string"}, "context": {"type": "string"}}}}
			}
		},
		"legal_issues": {"type": "array", "items": {"type": "object", "properties": {"issue": {"type": "string"}, "analysis": {"type": "string"}}}},
		"procedural_violations": {"type": "array", "items": {"type": "object", "properties": {"violation_type": {"type": "string"}, "evidence_of_violation": {"type": "string"}, "constitutional_implications": {"type": "string"}}}}
	},
	"required": ["ai_summary"]
}`)

var strategySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"strengths": {"type": "array", "items": {"type": "string"}},
		"weaknesses": {"type": "array", "items": {"type": "string"}},
		"recommended_motions": {"type": "array", "items": {"type": "object", "properties": {"motion": {"type": "string"}, "rationale": {"type": "string"}}}},
		"next_steps": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "integer", "minimum": 0, "maximum": 100}
	},
	"required": ["strengths", "weaknesses", "next_steps", "confidence"]
}`)

var simulatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"judge_response": {"type": "string"},
		"opposing_counsel_response": {"type": "string"},
		"coaching": {"type": "string"},
		"score": {"type": "integer", "minimum": 0, "maximum": 100}
	},
	"required": ["judge_response", "coaching"]
}`)

// gateAIFeature enforces entitlement then quota for the authenticated user.
// The two denials are deliberately distinct: a tier that lacks the feature is
// told so even when its quota is also exhausted.
func gateAIFeature(c *gin.Context, feature string) (models.User, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return models.User{}, false
	}

	user, err := getUserByAuth0Sub(c.Request.Context(), claims.Subject)
	if err != nil {
		// Unresolvable users are treated as free tier.
		user = models.User{Auth0Sub: claims.Subject, SubscriptionTier: models.TierFree}
	}

	ent := ResolveEntitlement(feature, user.SubscriptionTier)
	if !ent.Allowed {
		c.JSON(http.StatusForbidden, gin.H{
			"error":         "plan does not include this feature",
			"feature":       feature,
			"required_tier": ent.RequiredTier,
		})
		return models.User{}, false
	}

	if _, err := CheckQuota(c.Request.Context(), claims.Subject); err != nil {
		var qe quotaError
		if errors.As(err, &qe) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "quota exceeded",
				"limit": qe.Limit,
				"used":  qe.Used,
			})
			return models.User{}, false
		}
		utils.LogError(err, "quota check failed sub="+claims.Subject)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check usage"})
		return models.User{}, false
	}

	return user, true
}

// respondProviderError maps LLM failure classes onto HTTP statuses for call
// sites with no artifact to salvage.
func respondProviderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProviderAuth):
		utils.LogError(err, "llm auth failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "ai provider rejected credentials"})
	case errors.Is(err, ErrProviderQuota):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ai provider is over its rate or spend limit, try again shortly"})
	case errors.Is(err, ErrSchemaMismatch):
		utils.LogError(err, "llm schema mismatch")
		c.JSON(http.StatusBadGateway, gin.H{"error": "ai provider returned an unusable response"})
	default:
		utils.LogError(err, "llm call failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ai provider unavailable"})
	}
}

type analyzeDocumentRequest struct {
	DocumentName string `json:"document_name" binding:"required"`
	FileURL      string `json:"file_url"`
	Content      string `json:"content" binding:"required"`
	CaseContext  string `json:"case_context"`
}

// AnalyzeDocument runs a structured legal analysis over extracted document
// text. Provider quota failures persist a degraded row so the uploaded
// artifact is never lost.
func AnalyzeDocument(c *gin.Context) {
	user, ok := gateAIFeature(c, FeatureDocumentAnalysis)
	if !ok {
		return
	}

	var req analyzeDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_name and content are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), aiRequestTimeout)
	defer cancel()

	instruction := "You are an expert constitutional law analyst. Review the document for due process " +
		"violations, procedural failures, and constitutional issues. Cite specific passages."
	input := "DOCUMENT: " + req.DocumentName + "\n\n" + req.Content
	if req.CaseContext != "" {
		input += "\n\nCASE CONTEXT: " + req.CaseContext
	}

	result, err := llmc.Invoke(ctx, instruction, input, analysisSchema)
	if err != nil {
		if errors.Is(err, ErrProviderQuota) {
			doc := &models.AnalyzedDocument{
				Auth0Sub:     user.Auth0Sub,
				DocumentName: req.DocumentName,
				FileURL:      req.FileURL,
				Summary:      "Document uploaded but analysis is incomplete: the AI provider hit a rate or spend limit.",
				Status:       models.AnalysisIncomplete,
			}
			if saveErr := saveAnalyzedDocument(ctx, doc); saveErr != nil {
				utils.LogError(saveErr, "failed to save degraded analysis")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save analysis"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"document": doc, "degraded": true})
			return
		}
		respondProviderError(c, err)
		return
	}

	var parsed struct {
		AISummary string `json:"ai_summary"`
	}
	_ = json.Unmarshal(result.JSON, &parsed)

	doc := &models.AnalyzedDocument{
		Auth0Sub:     user.Auth0Sub,
		DocumentName: req.DocumentName,
		FileURL:      req.FileURL,
		Summary:      parsed.AISummary,
		Analysis:     result.JSON,
		Status:       models.AnalysisCompleted,
	}
	if err := saveAnalyzedDocument(ctx, doc); err != nil {
		utils.LogError(err, "failed to save analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save analysis"})
		return
	}

	if err := ConsumeUsage(ctx, user.Auth0Sub); err != nil {
		utils.LogError(err, "failed to record usage sub="+user.Auth0Sub)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": doc})
}

type caseStrategyRequest struct {
	CaseSummary  string `json:"case_summary" binding:"required"`
	Charges      string `json:"charges"`
	Jurisdiction string `json:"jurisdiction"`
}

// CaseStrategy produces a structured defense strategy for a case summary.
func CaseStrategy(c *gin.Context) {
	user, ok := gateAIFeature(c, FeatureCaseStrategy)
	if !ok {
		return
	}

	var req caseStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_summary is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), aiRequestTimeout)
	defer cancel()

	instruction := "You are a criminal defense strategist. Assess the case, identify strengths and " +
		"weaknesses, and recommend motions and next steps for a self-represented litigant."
	input := "CASE SUMMARY: " + req.CaseSummary
	if req.Charges != "" {
		input += "\nCHARGES: " + req.Charges
	}
	if req.Jurisdiction != "" {
		input += "\nJURISDICTION: " + req.Jurisdiction
	}

	result, err := llmc.Invoke(ctx, instruction, input, strategySchema)
	if err != nil {
		respondProviderError(c, err)
		return
	}

	var parsed struct {
		Confidence int `json:"confidence"`
	}
	_ = json.Unmarshal(result.JSON, &parsed)

	cs := &models.CaseStrategy{
		Auth0Sub:    user.Auth0Sub,
		CaseSummary: req.CaseSummary,
		Strategy:    result.JSON,
		Confidence:  parsed.Confidence,
	}
	if err := saveCaseStrategy(ctx, cs); err != nil {
		utils.LogError(err, "failed to save strategy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save strategy"})
		return
	}

	if err := ConsumeUsage(ctx, user.Auth0Sub); err != nil {
		utils.LogError(err, "failed to record usage sub="+user.Auth0Sub)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"strategy": cs})
}

type generateDocumentRequest struct {
	DocumentType string `json:"document_type" binding:"required"`
	Title        string `json:"title"`
	Details      string `json:"details" binding:"required"`
}

// GenerateDocument drafts a narrative legal document (motion, complaint,
// records request) from user-supplied facts.
func GenerateDocument(c *gin.Context) {
	user, ok := gateAIFeature(c, FeatureDocumentGeneration)
	if !ok {
		return
	}

	var req generateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_type and details are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), aiRequestTimeout)
	defer cancel()

	instruction := "You are a legal draftsman. Produce a complete, properly structured " +
		req.DocumentType + " ready for the user to review and file. Plain prose, no JSON."
	result, err := llmc.Invoke(ctx, instruction, req.Details, nil)
	if err != nil {
		respondProviderError(c, err)
		return
	}

	title := req.Title
	if title == "" {
		title = req.DocumentType
	}
	gd := &models.GeneratedDocument{
		Auth0Sub:     user.Auth0Sub,
		DocumentType: req.DocumentType,
		Title:        title,
		Body:         result.Text,
	}
	if err := saveGeneratedDocument(ctx, gd); err != nil {
		utils.LogError(err, "failed to save generated document")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save document"})
		return
	}

	if err := ConsumeUsage(ctx, user.Auth0Sub); err != nil {
		utils.LogError(err, "failed to record usage sub="+user.Auth0Sub)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": gd})
}

type simulatorRequest struct {
	Scenario      string `json:"scenario" binding:"required"`
	UserStatement string `json:"user_statement" binding:"required"`
}

// SimulatorTurn plays one courtroom simulator exchange: the user speaks, the
// model answers as judge and opposing counsel with coaching.
func SimulatorTurn(c *gin.Context) {
	user, ok := gateAIFeature(c, FeatureCourtroomSimulator)
	if !ok {
		return
	}

	var req simulatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario and user_statement are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), aiRequestTimeout)
	defer cancel()

	instruction := "You are running a courtroom simulation. Respond in character as the judge and " +
		"opposing counsel, then coach the user on their performance."
	input := "SCENARIO: " + req.Scenario + "\n\nUSER SAYS: " + req.UserStatement

	result, err := llmc.Invoke(ctx, instruction, input, simulatorSchema)
	if err != nil {
		respondProviderError(c, err)
		return
	}

	ss := &models.SimulatorSession{
		Auth0Sub:   user.Auth0Sub,
		Scenario:   req.Scenario,
		Transcript: result.JSON,
	}
	if err := saveSimulatorSession(ctx, ss); err != nil {
		utils.LogError(err, "failed to save simulator session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	if err := ConsumeUsage(ctx, user.Auth0Sub); err != nil {
		utils.LogError(err, "failed to record usage sub="+user.Auth0Sub)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": ss})
}
