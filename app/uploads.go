package app

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 100 << 20

// UploadArtifact stores a multipart file (evidence documents, audio
// recordings) in the upload bucket under a per-user prefix and returns the
// object URL for later analysis calls.
func UploadArtifact(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil || cfg.AWS.UploadBucket == "" {
		utils.LogError(err, "upload bucket not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "uploads not configured"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		utils.LogError(err, "failed to load AWS config for S3")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	s3Client := s3.NewFromConfig(awsCfg)

	key := fmt.Sprintf("%s/%s%s", claims.Subject, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &cfg.AWS.UploadBucket,
		Key:         &key,
		Body:        file,
		ContentType: &contentType,
	})
	if err != nil {
		utils.LogError(err, "S3 PutObject failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file_url":    fmt.Sprintf("https://%s.s3.amazonaws.com/%s", cfg.AWS.UploadBucket, key),
		"file_name":   fileHeader.Filename,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	})
}
