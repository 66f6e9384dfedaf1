// Async audio transcription: the HTTP handler records a job and enqueues it;
// the transcribe worker pulls the artifact, transcribes it, analyzes the
// transcript, and stores the outcome on the job row.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
)

var audioAnalysisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"overall_summary": {"type": "string"},
		"key_events": {"type": "array", "items": {"type": "object", "properties": {"timestamp": {"type": "string"}, "description": {"type": "string"}}}},
		"identified_violations": {"type": "array", "items": {"type": "object", "properties": {"violation_type": {"type": "string"}, "supporting_evidence": {"type": "string"}, "constitutional_implication": {"type": "string"}}}}
	},
	"required": ["overall_summary", "identified_violations"]
}`)

type analyzeAudioRequest struct {
	FileURL     string `json:"file_url" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	CaseContext string `json:"case_context"`
	UserNotes   string `json:"user_notes"`
}

// AnalyzeAudio accepts an uploaded recording reference, records a queued job,
// and enqueues it for the transcribe worker. Responds 202 with the job id.
func AnalyzeAudio(c *gin.Context) {
	user, ok := gateAIFeature(c, FeatureAudioTranscription)
	if !ok {
		return
	}

	var req analyzeAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_url and file_name are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	jobID, err := CreateTranscriptionJob(ctx, user.Auth0Sub, req.FileURL, req.FileName)
	if err != nil {
		utils.LogError(err, "failed to create transcription job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError(err, "LoadConfig failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	if cfg.AWS.QueueURL == "" {
		utils.LogError(nil, "QUEUE_URL missing in config; cannot enqueue job "+jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transcription queue not configured"})
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		utils.LogError(err, "failed to load AWS config for SQS")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	msg := models.TranscriptionMessage{
		JobID:       jobID,
		Auth0Sub:    user.Auth0Sub,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		CaseContext: req.CaseContext,
		UserNotes:   req.UserNotes,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		utils.LogError(err, "failed to marshal transcription message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	_, err = sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &cfg.AWS.QueueURL,
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		utils.LogError(err, "failed to send SQS message for job "+jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": models.JobQueued})
}

// GetJobStatus returns the state of one transcription job, scoped to its
// owner.
func GetJobStatus(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	jobID := c.Param("jobid")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	job, err := FindJob(ctx, jobID, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

var artifactClient = &http.Client{Timeout: 2 * time.Minute}

// ProcessTranscriptionJob runs one queued job to completion. Provider quota
// and auth failures are terminal for the job (the artifact stays, the job is
// marked failed); transient failures return an error so the queue redelivers.
func ProcessTranscriptionJob(ctx context.Context, msg models.TranscriptionMessage) error {
	if err := MarkJobRunning(ctx, msg.JobID); err != nil {
		return err
	}

	audio, err := fetchArtifact(ctx, msg.FileURL)
	if err != nil {
		utils.LogError(err, "failed to fetch audio artifact for job "+msg.JobID)
		return err
	}
	defer audio.Close()

	transcript, err := llmc.Transcribe(ctx, msg.FileName, audio)
	if err != nil {
		return failOrRetry(ctx, msg.JobID, err)
	}

	input := "TRANSCRIPT:\n" + transcript
	if msg.CaseContext != "" {
		input += "\n\nCASE CONTEXT: " + msg.CaseContext
	}
	if msg.UserNotes != "" {
		input += "\n\nUSER NOTES: " + msg.UserNotes
	}
	instruction := "Analyze this audio transcript of a police encounter for constitutional violations, " +
		"due process issues, Miranda problems, and procedural failures. Quote the transcript for each finding."

	result, err := llmc.Invoke(ctx, instruction, input, audioAnalysisSchema)
	if err != nil {
		return failOrRetry(ctx, msg.JobID, err)
	}

	if err := CompleteJob(ctx, msg.JobID, transcript, result.JSON); err != nil {
		return err
	}

	// The operation produced a usable result; it counts against quota now.
	if err := ConsumeUsage(ctx, msg.Auth0Sub); err != nil {
		utils.LogError(err, "failed to record usage for job "+msg.JobID)
	}
	return nil
}

// failOrRetry marks quota and auth failures terminal and lets everything else
// bubble up for queue-level redelivery.
func failOrRetry(ctx context.Context, jobID string, err error) error {
	if errors.Is(err, ErrProviderQuota) {
		return FailJob(ctx, jobID, "provider quota or rate limit reached; audio file retained")
	}
	if errors.Is(err, ErrProviderAuth) {
		return FailJob(ctx, jobID, "provider rejected credentials")
	}
	return err
}

func fetchArtifact(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := artifactClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("artifact fetch returned http %d", res.StatusCode)
	}
	return res.Body, nil
}
