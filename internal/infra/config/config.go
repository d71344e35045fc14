package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	BotToken          string
	DatabaseURL       string
	TeacherTelegramID int64
	LogLevel          string
	Environment       string

	// CronSpecCampaignPoll drives the due-job poll loop.
	CronSpecCampaignPoll string
	// CronSpecSummaryRepair drives the periodic stale-summary sweep.
	CronSpecSummaryRepair string

	// AtRiskThreshold is the missing-assignment count before a student is
	// considered at risk; it is also the default campaign threshold.
	AtRiskThreshold int
	// SendTimeout bounds each individual notifier call so one unreachable
	// recipient cannot stall a whole campaign.
	SendTimeout time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	teacherIDStr := os.Getenv("TEACHER_TELEGRAM_ID")
	if teacherIDStr == "" {
		return nil, fmt.Errorf("TEACHER_TELEGRAM_ID is not set")
	}
	cfg.TeacherTelegramID, err = strconv.ParseInt(teacherIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TEACHER_TELEGRAM_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.CronSpecCampaignPoll = os.Getenv("CRON_SPEC_CAMPAIGN_POLL")
	if cfg.CronSpecCampaignPoll == "" {
		cfg.CronSpecCampaignPoll = "@every 20s"
	}

	cfg.CronSpecSummaryRepair = os.Getenv("CRON_SPEC_SUMMARY_REPAIR")
	if cfg.CronSpecSummaryRepair == "" {
		cfg.CronSpecSummaryRepair = "@every 5m"
	}

	cfg.AtRiskThreshold = intEnv("AT_RISK_THRESHOLD", 3)
	cfg.SendTimeout = durationEnv("SEND_TIMEOUT", 10*time.Second)

	return cfg, nil
}

func intEnv(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func durationEnv(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}
