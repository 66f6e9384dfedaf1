package models

import (
	"encoding/json"
	"time"
)

// Analysis result statuses. "incomplete" marks a degraded result kept after a
// provider quota or rate-limit failure: the artifact survives, the analysis
// does not.
const (
	AnalysisCompleted  = "completed"
	AnalysisIncomplete = "incomplete"
	AnalysisFailed     = "failed"
)

// AnalyzedDocument is the persisted output of a document analysis run.
type AnalyzedDocument struct {
	ID           string          `json:"id"`
	Auth0Sub     string          `json:"-"`
	DocumentName string          `json:"document_name"`
	FileURL      string          `json:"file_url,omitempty"`
	Summary      string          `json:"summary"`
	Analysis     json.RawMessage `json:"analysis,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CaseStrategy is the persisted output of the AI case strategist.
type CaseStrategy struct {
	ID          string          `json:"id"`
	Auth0Sub    string          `json:"-"`
	CaseSummary string          `json:"case_summary"`
	Strategy    json.RawMessage `json:"strategy"`
	Confidence  int             `json:"confidence"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GeneratedDocument is a narrative legal document produced on request.
type GeneratedDocument struct {
	ID           string    `json:"id"`
	Auth0Sub     string    `json:"-"`
	DocumentType string    `json:"document_type"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// SimulatorSession stores one courtroom simulator exchange.
type SimulatorSession struct {
	ID         string          `json:"id"`
	Auth0Sub   string          `json:"-"`
	Scenario   string          `json:"scenario"`
	Transcript json.RawMessage `json:"transcript"`
	CreatedAt  time.Time       `json:"created_at"`
}
