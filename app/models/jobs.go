package models

import (
	"encoding/json"
	"time"
)

// Transcription job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// TranscriptionJob tracks an async audio transcription + analysis run.
type TranscriptionJob struct {
	ID         string          `json:"id"`
	Auth0Sub   string          `json:"-"`
	FileURL    string          `json:"file_url"`
	FileName   string          `json:"file_name"`
	Status     string          `json:"status"`
	Transcript string          `json:"transcript,omitempty"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
