package config

import (
	"os"
	"strconv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	DB     PostgresConfig
	Stripe StripeConfig
	LLM    LLMConfig
	AWS    AWSConfig
	Cron   CronConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	PriceIDBasic   string
	PriceIDPremium string
	FrontendURL    string
}

// LLMConfig points at an OpenAI-compatible provider.
type LLMConfig struct {
	BaseURL            string
	APIKey             string
	Model              string
	TranscriptionModel string
	TimeoutSeconds     int
}

type AWSConfig struct {
	UploadBucket string
	QueueURL     string
}

type CronConfig struct {
	// UsageResetSpec defaults to midnight UTC on the first of each month.
	UsageResetSpec string
}

func LoadConfig() (*Config, error) {
	timeout := 60
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	resetSpec := os.Getenv("USAGE_RESET_CRON")
	if resetSpec == "" {
		resetSpec = "0 0 1 * *"
	}

	cfg := &Config{
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Stripe: StripeConfig{
			SecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDBasic:   os.Getenv("STRIPE_PRICE_ID_BASIC_MONTHLY"),
			PriceIDPremium: os.Getenv("STRIPE_PRICE_ID_PREMIUM_MONTHLY"),
			FrontendURL:    os.Getenv("FRONTEND_URL"),
		},
		LLM: LLMConfig{
			BaseURL:            os.Getenv("LLM_BASE_URL"),
			APIKey:             os.Getenv("LLM_API_KEY"),
			Model:              os.Getenv("LLM_MODEL"),
			TranscriptionModel: os.Getenv("LLM_TRANSCRIPTION_MODEL"),
			TimeoutSeconds:     timeout,
		},
		AWS: AWSConfig{
			UploadBucket: os.Getenv("UPLOAD_BUCKET"),
			QueueURL:     os.Getenv("QUEUE_URL"),
		},
		Cron: CronConfig{
			UsageResetSpec: resetSpec,
		},
	}

	return cfg, nil
}
