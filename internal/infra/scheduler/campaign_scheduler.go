package scheduler

import (
	"context"
	"time"

	"assignment_tracker_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CampaignScheduler drives the two background loops: the due-campaign
// poll and the stale-summary repair sweep. Both jobs are idempotent, so
// an overlapping or missed tick is harmless; the poll relies on the
// campaign claim for exclusivity, the sweep on the stale flag.
type CampaignScheduler struct {
	cronEngine     *cron.Cron
	campaignSvc    *app.CampaignService
	summarySvc     *app.SummaryService
	logger         *logrus.Entry
	cronSpecPoll   string
	cronSpecRepair string
}

func NewCampaignScheduler(
	campaignSvc *app.CampaignService,
	summarySvc *app.SummaryService,
	logger *logrus.Entry,
	cronSpecPoll string,
	cronSpecRepair string,
) *CampaignScheduler {
	return &CampaignScheduler{
		cronEngine:     cron.New(cron.WithLocation(time.Local)),
		campaignSvc:    campaignSvc,
		summarySvc:     summarySvc,
		logger:         logger,
		cronSpecPoll:   cronSpecPoll,
		cronSpecRepair: cronSpecRepair,
	}
}

func (s *CampaignScheduler) Start() {
	s.logger.Info("Starting campaign scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecPoll, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ran, err := s.campaignSvc.RunDue(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Due-campaign poll tick failed")
			return
		}
		if ran > 0 {
			s.logger.WithField("jobs_ran", ran).Info("Due-campaign poll executed jobs")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add due-campaign poll cron job")
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecRepair, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.summarySvc.RepairSweep(ctx)
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add summary repair cron job")
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"campaign_poll":  s.cronSpecPoll,
		"summary_repair": s.cronSpecRepair,
	}).Info("Campaign scheduler started")
}

// Stop halts the cron engine and waits for running jobs to finish.
func (s *CampaignScheduler) Stop() {
	s.logger.Info("Stopping campaign scheduler...")
	stopCtx := s.cronEngine.Stop()
	<-stopCtx.Done()
	s.logger.Info("Campaign scheduler stopped")
}
