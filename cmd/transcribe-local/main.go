// Local runner for a single transcription job, useful when debugging the
// worker without SQS.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
)

func main() {
	jobID := flag.String("job", "", "transcription job id")
	auth0Sub := flag.String("user", "", "owning user auth0 sub")
	fileURL := flag.String("url", "", "audio artifact URL")
	fileName := flag.String("name", "recording.mp3", "audio file name")
	flag.Parse()

	if *jobID == "" || *auth0Sub == "" || *fileURL == "" {
		log.Fatal("usage: transcribe-local -job <id> -user <sub> -url <file url> [-name <file name>]")
	}

	start := time.Now()
	app.MustInitDB()
	app.InitLLM()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	err := app.ProcessTranscriptionJob(ctx, models.TranscriptionMessage{
		JobID:    *jobID,
		Auth0Sub: *auth0Sub,
		FileURL:  *fileURL,
		FileName: *fileName,
	})
	if err != nil {
		log.Fatalf("job failed: %v", err)
	}
	log.Printf("Took %s", time.Since(start))
}
