package models

// TranscriptionMessage is the SQS payload handed to the transcribe worker.
type TranscriptionMessage struct {
	JobID       string `json:"job_id"`
	Auth0Sub    string `json:"auth0_sub"`
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
	CaseContext string `json:"case_context,omitempty"`
	UserNotes   string `json:"user_notes,omitempty"`
}
