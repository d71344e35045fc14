package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assignment_tracker_bot/internal/app"
	"assignment_tracker_bot/internal/infra/config"
	idb "assignment_tracker_bot/internal/infra/database"
	"assignment_tracker_bot/internal/infra/logger"
	"assignment_tracker_bot/internal/infra/scheduler"
	"assignment_tracker_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Log.WithField("component", "main")
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Teacher ID: %d",
		cfg.LogLevel, cfg.Environment, cfg.TeacherTelegramID)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.Migrate(db); err != nil {
		log.Fatalf("Could not apply database schema: %v", err)
	}
	log.Info("Database connection established and schema applied.")

	// Repositories
	tracker := idb.NewDirtyTracker()
	studentRepo := idb.NewPostgresStudentRepository(db)
	courseRepo := idb.NewPostgresCourseRepository(db, tracker)
	submissionRepo := idb.NewPostgresSubmissionRepository(db, tracker)
	summaryRepo := idb.NewPostgresSummaryRepository(db)
	campaignRepo := idb.NewPostgresCampaignRepository(db)
	syncLogRepo := idb.NewPostgresSyncLogRepository(db)

	// Telegram bot
	pref := telebot.Settings{
		Token:  cfg.BotToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Log.WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("Could not create Telegram bot: %v", err)
	}

	// Services
	summarySvc := app.NewSummaryService(summaryRepo)
	selector := app.NewTargetSelector(summaryRepo, submissionRepo)
	notifier := telegram.NewTelebotAdapter(bot)
	campaignSvc := app.NewCampaignService(campaignRepo, summarySvc, selector, notifier, cfg.SendTimeout)
	regSvc := app.NewRegistrationService(studentRepo)
	importSvc := app.NewImportService(studentRepo, courseRepo, submissionRepo, summarySvc, syncLogRepo)

	ctx := context.Background()

	// Close out jobs a previous process left mid-flight before any poller
	// can pick them up.
	if err := campaignSvc.RecoverAbandoned(ctx); err != nil {
		log.Fatalf("Could not recover abandoned campaigns: %v", err)
	}

	// Scheduler
	campaignScheduler := scheduler.NewCampaignScheduler(
		campaignSvc,
		summarySvc,
		logger.Log.WithField("component", "scheduler"),
		cfg.CronSpecCampaignPoll,
		cfg.CronSpecSummaryRepair,
	)
	campaignScheduler.Start()

	// Handlers
	handlerLogger := logger.Log.WithField("component", "telegram")
	telegram.RegisterStudentHandlers(ctx, bot, cfg, regSvc, summarySvc, submissionRepo, courseRepo, handlerLogger)
	telegram.RegisterTeacherHandlers(ctx, bot, cfg, campaignSvc, summarySvc, importSvc, submissionRepo, courseRepo, studentRepo, handlerLogger)
	log.Info("Command handlers registered. Bot is starting...")

	go bot.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	campaignScheduler.Stop()
	bot.Stop()
	log.Info("Shut down gracefully.")
}
