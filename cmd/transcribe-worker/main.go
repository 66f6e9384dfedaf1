// Lambda worker that consumes transcription jobs from SQS.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LaDySmOkEs/DueProcessAI44/app"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

func init() {
	app.MustInitDB()
	app.InitLLM()
}

// Handler processes a batch of SQS records. A returned error makes the whole
// batch visible again, so malformed messages are dropped rather than retried.
func Handler(ctx context.Context, event events.SQSEvent) error {
	for _, record := range event.Records {
		var msg models.TranscriptionMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			utils.LogError(err, "dropping malformed transcription message "+record.MessageId)
			continue
		}
		if err := app.ProcessTranscriptionJob(ctx, msg); err != nil {
			return fmt.Errorf("job %s: %w", msg.JobID, err)
		}
	}
	return nil
}

func main() {
	lambda.Start(Handler)
}
