package app

import (
	"context"
	"strings"
	"time"

	"assignment_tracker_bot/internal/domain/campaign"
	"assignment_tracker_bot/internal/domain/notify"
	"assignment_tracker_bot/internal/infra/logger"
)

// abandonedReason is stamped on jobs left running by a previous process.
const abandonedReason = "abandoned: process restarted during execution"

// CampaignService creates and executes reminder campaigns. Execution is
// gated by the repository's Claim so that overlapping poll ticks, an
// immediate send racing the scheduler, or two bot instances on one
// database never double-send a job.
type CampaignService struct {
	campaignRepo campaign.Repository
	summarySvc   *SummaryService
	selector     *TargetSelector
	notifier     notify.Notifier
	sendTimeout  time.Duration
	now          func() time.Time
}

func NewCampaignService(
	cr campaign.Repository,
	ss *SummaryService,
	ts *TargetSelector,
	n notify.Notifier,
	sendTimeout time.Duration,
) *CampaignService {
	return &CampaignService{
		campaignRepo: cr,
		summarySvc:   ss,
		selector:     ts,
		notifier:     n,
		sendTimeout:  sendTimeout,
		now:          time.Now,
	}
}

// Create persists a new campaign job. A job whose run time has already
// arrived is executed synchronously before returning; the claim step
// still applies, so a poll tick firing at the same moment cannot run it
// twice. Returns whether the job ran in this call.
func (s *CampaignService) Create(ctx context.Context, j *campaign.Job) (bool, error) {
	if strings.TrimSpace(j.TemplateKey) == "" {
		j.TemplateKey = campaign.DefaultTemplateKey
	}
	if j.MissingThreshold < 1 {
		j.MissingThreshold = 1
	}
	if j.RunAt.IsZero() {
		j.RunAt = s.now()
	}
	if err := s.campaignRepo.Create(ctx, j); err != nil {
		return false, err
	}
	logger.Log.Infof("Campaign %d created by %s (template %s, threshold %d, run at %s)",
		j.ID, j.CreatedBy, j.TemplateKey, j.MissingThreshold, j.RunAt.Format(time.RFC3339))

	if !j.Due(s.now()) {
		return false, nil
	}
	return s.runClaimed(ctx, j)
}

// RunDue executes every pending job whose run time has arrived. Called
// by the scheduler poll tick and by the manual /rundue command. Returns
// the number of jobs this caller actually executed.
func (s *CampaignService) RunDue(ctx context.Context) (int, error) {
	due, err := s.campaignRepo.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, j := range due {
		executed, err := s.runClaimed(ctx, j)
		if err != nil {
			logger.Log.Errorf("Campaign %d execution error: %v", j.ID, err)
			continue
		}
		if executed {
			ran++
		}
	}
	return ran, nil
}

// runClaimed attempts the pending->running transition and executes the
// job when it wins. Losing the claim is not an error.
func (s *CampaignService) runClaimed(ctx context.Context, j *campaign.Job) (bool, error) {
	claimed, err := s.campaignRepo.Claim(ctx, j.ID, s.now())
	if err != nil {
		return false, err
	}
	if !claimed {
		logger.Log.Debugf("Campaign %d already claimed elsewhere, skipping", j.ID)
		return false, nil
	}
	s.execute(ctx, j)
	return true, nil
}

// execute runs one claimed job to a terminal state. Setup failures
// (rebuild, target selection) fail the job; per-recipient send failures
// do not, they are tallied and the first one is retained on the
// completed row.
func (s *CampaignService) execute(ctx context.Context, j *campaign.Job) {
	scope := int64(0)
	if j.CourseID.Valid {
		scope = j.CourseID.Int64
	}

	if _, err := s.summarySvc.RebuildAllStale(ctx, scope); err != nil {
		s.finishFailed(ctx, j.ID, "summary rebuild failed: "+err.Error())
		return
	}

	targets, err := s.selector.SelectTargets(ctx, scope, j.MissingThreshold)
	if err != nil {
		s.finishFailed(ctx, j.ID, "target selection failed: "+err.Error())
		return
	}

	template := campaign.ResolveTemplate(j)
	sent := 0
	firstErr := ""
	for _, r := range targets {
		text := campaign.Render(template, campaign.RenderData{
			FirstName:     r.FirstName,
			FullName:      r.FullName,
			MissingCount:  r.MissingCount,
			MissingTitles: r.MissingTitles,
		})
		if err := s.send(ctx, r.ChatID, text); err != nil {
			logger.Log.Warnf("Campaign %d: send to student %d failed: %v", j.ID, r.StudentID, err)
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		sent++
	}

	if err := s.campaignRepo.Complete(ctx, j.ID, len(targets), sent, firstErr); err != nil {
		logger.Log.Errorf("Campaign %d: failed to record completion: %v", j.ID, err)
		return
	}
	logger.Log.Infof("Campaign %d completed: %d/%d sent", j.ID, sent, len(targets))
}

// send bounds one notifier call so a stalled recipient cannot hold the
// whole campaign.
func (s *CampaignService) send(ctx context.Context, chatID int64, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.notifier.Send(sendCtx, chatID, text)
}

func (s *CampaignService) finishFailed(ctx context.Context, id int64, reason string) {
	logger.Log.Errorf("Campaign %d failed: %s", id, reason)
	if err := s.campaignRepo.Fail(ctx, id, reason); err != nil {
		logger.Log.Errorf("Campaign %d: failed to record failure: %v", id, err)
	}
}

// RecoverAbandoned fails jobs left in the running state by a previous
// process. Called once at startup, before the scheduler starts. Such a
// job may have sent to some recipients already, so it is closed out
// rather than re-claimed.
func (s *CampaignService) RecoverAbandoned(ctx context.Context) error {
	n, err := s.campaignRepo.FailAbandoned(ctx, abandonedReason)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Log.Warnf("Marked %d abandoned campaign job(s) as failed", n)
	}
	return nil
}

// GetJob returns one campaign job for status display.
func (s *CampaignService) GetJob(ctx context.Context, id int64) (*campaign.Job, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

// ListRecentJobs returns the latest campaign jobs for the history view.
func (s *CampaignService) ListRecentJobs(ctx context.Context, limit int) ([]*campaign.Job, error) {
	return s.campaignRepo.ListRecent(ctx, limit)
}

// PreviewTargets runs the selection a pending campaign with the given
// parameters would use, without sending anything.
func (s *CampaignService) PreviewTargets(ctx context.Context, courseID int64, threshold int) ([]Recipient, error) {
	if _, err := s.summarySvc.RebuildAllStale(ctx, courseID); err != nil {
		return nil, err
	}
	return s.selector.SelectTargets(ctx, courseID, threshold)
}
