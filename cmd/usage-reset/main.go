// Scheduler that zeroes stale monthly AI usage counters. The quota check also
// self-corrects stale counters on read, so this job only keeps dormant
// accounts tidy.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app"
	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app.MustInitDB()

	c := cron.New()
	_, err = c.AddFunc(cfg.Cron.UsageResetSpec, runReset)
	if err != nil {
		log.Fatalf("invalid cron spec %q: %v", cfg.Cron.UsageResetSpec, err)
	}

	utils.LogInfo("usage reset scheduler started with spec " + cfg.Cron.UsageResetSpec)
	c.Run()
}

func runReset() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reset, err := app.ResetStaleUsage(ctx)
	if err != nil {
		utils.LogError(err, "usage reset run failed")
		return
	}
	utils.LogInfo(fmt.Sprintf("usage reset complete: %d accounts", reset))
}
