package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	_ "github.com/lib/pq"
)

var db *sql.DB

// MustInitDB initializes the global db and logs fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.Logger.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		utils.Logger.Fatalf("sql.Open: %v", err)
	}

	if err := d.Ping(); err != nil {
		utils.Logger.Fatalf("db.Ping: %v", err)
	}

	utils.LogInfo("connected to Postgres")
	db = d
}

func saveAnalyzedDocument(ctx context.Context, doc *models.AnalyzedDocument) error {
	if db == nil {
		// Allow test runs without a backing DB.
		return nil
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO analyzed_documents (auth0_sub, document_name, file_url, summary, analysis, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at;
	`, doc.Auth0Sub, doc.DocumentName, nullIfEmpty(doc.FileURL), doc.Summary, nullableJSON(doc.Analysis), doc.Status).
		Scan(&doc.ID, &doc.CreatedAt)
}

func saveCaseStrategy(ctx context.Context, cs *models.CaseStrategy) error {
	if db == nil {
		return nil
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO case_strategies (auth0_sub, case_summary, strategy, confidence)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at;
	`, cs.Auth0Sub, cs.CaseSummary, nullableJSON(cs.Strategy), cs.Confidence).
		Scan(&cs.ID, &cs.CreatedAt)
}

func saveGeneratedDocument(ctx context.Context, gd *models.GeneratedDocument) error {
	if db == nil {
		return nil
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO generated_documents (auth0_sub, document_type, title, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at;
	`, gd.Auth0Sub, gd.DocumentType, gd.Title, gd.Body).
		Scan(&gd.ID, &gd.CreatedAt)
}

func saveSimulatorSession(ctx context.Context, ss *models.SimulatorSession) error {
	if db == nil {
		return nil
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO simulator_sessions (auth0_sub, scenario, transcript)
		VALUES ($1, $2, $3)
		RETURNING id, created_at;
	`, ss.Auth0Sub, ss.Scenario, nullableJSON(ss.Transcript)).
		Scan(&ss.ID, &ss.CreatedAt)
}

// CreateTranscriptionJob records a queued audio job and returns its id.
func CreateTranscriptionJob(ctx context.Context, auth0Sub, fileURL, fileName string) (string, error) {
	const q = `
		INSERT INTO transcription_jobs (auth0_sub, file_url, file_name, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`
	var jobID string
	if err := db.QueryRowContext(ctx, q, auth0Sub, fileURL, fileName, models.JobQueued).Scan(&jobID); err != nil {
		return "", err
	}
	utils.Logger.WithField("job_id", jobID).Info("created transcription job")
	return jobID, nil
}

// MarkJobRunning flips a queued job to running.
func MarkJobRunning(ctx context.Context, jobID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = $1, updated_at = now()
		WHERE id = $2;
	`, models.JobRunning, jobID)
	return err
}

// CompleteJob stores the transcript and analysis for a finished job.
func CompleteJob(ctx context.Context, jobID, transcript string, analysis []byte) error {
	_, err := db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = $1, transcript = $2, analysis = $3, updated_at = now()
		WHERE id = $4;
	`, models.JobCompleted, transcript, nullableJSON(analysis), jobID)
	return err
}

// FailJob records a terminal failure. The uploaded artifact reference stays
// on the row so the user's file is never lost with the error.
func FailJob(ctx context.Context, jobID, reason string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = $1, error = $2, updated_at = now()
		WHERE id = $3;
	`, models.JobFailed, reason, jobID)
	return err
}

// FindJob fetches one transcription job scoped to its owner.
func FindJob(ctx context.Context, jobID, auth0Sub string) (models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	var transcript, jobErr sql.NullString
	var analysis []byte

	const q = `
		SELECT id, file_url, file_name, status, transcript, analysis, error, created_at, updated_at
		FROM transcription_jobs
		WHERE id = $1 AND auth0_sub = $2;
	`

	row := db.QueryRowContext(ctx, q, jobID, auth0Sub)
	if err := row.Scan(
		&job.ID, &job.FileURL, &job.FileName, &job.Status,
		&transcript, &analysis, &jobErr, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return models.TranscriptionJob{}, err
	}
	job.Auth0Sub = auth0Sub
	job.Transcript = transcript.String
	job.Error = jobErr.String
	job.Analysis = analysis
	return job, nil
}

// nullableJSON maps empty JSON payloads to SQL NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
