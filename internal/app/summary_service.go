package app

import (
	"context"
	"fmt"

	"assignment_tracker_bot/internal/domain/summary"
	"assignment_tracker_bot/internal/infra/logger"
)

// staleBatchSize bounds one sweep pass so a huge backlog cannot hold a
// poll tick forever.
const staleBatchSize = 200

// SummaryService owns summary reads and rebuilds. Everything that wants
// a fresh aggregate goes through here: the bot's /summary command, the
// campaign runner before selecting targets, and the periodic repair
// sweep.
type SummaryService struct {
	summaryRepo summary.Repository
}

func NewSummaryService(sr summary.Repository) *SummaryService {
	return &SummaryService{summaryRepo: sr}
}

// GetFresh returns the summary for one pair, rebuilding it first when it
// is stale or absent.
func (s *SummaryService) GetFresh(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	cached, err := s.summaryRepo.Get(ctx, studentID, courseID)
	if err == nil && !cached.IsStale {
		return cached, nil
	}
	rebuilt, rebuildErr := s.summaryRepo.Rebuild(ctx, studentID, courseID)
	if rebuildErr != nil {
		return nil, fmt.Errorf("failed to rebuild summary for student %d course %d: %w", studentID, courseID, rebuildErr)
	}
	return rebuilt, nil
}

// Rebuild forces a recomputation of one pair regardless of staleness.
func (s *SummaryService) Rebuild(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	return s.summaryRepo.Rebuild(ctx, studentID, courseID)
}

// RebuildAllStale sweeps stale and absent summary rows in batches until
// none remain, scoped to one course when courseID is non-zero. Returns
// the number of rows rebuilt. A rebuild failure stops the sweep; rows
// already rebuilt stay rebuilt.
func (s *SummaryService) RebuildAllStale(ctx context.Context, courseID int64) (int, error) {
	rebuilt := 0
	for {
		pairs, err := s.summaryRepo.ListStalePairs(ctx, courseID, staleBatchSize)
		if err != nil {
			return rebuilt, fmt.Errorf("failed to list stale summaries: %w", err)
		}
		if len(pairs) == 0 {
			return rebuilt, nil
		}
		for _, p := range pairs {
			if _, err := s.summaryRepo.Rebuild(ctx, p.StudentID, p.CourseID); err != nil {
				return rebuilt, fmt.Errorf("failed to rebuild summary for student %d course %d: %w", p.StudentID, p.CourseID, err)
			}
			rebuilt++
		}
		// A writer can re-dirty a pair we just rebuilt; a short batch means
		// the backlog is drained and re-dirtied rows wait for the next sweep.
		if len(pairs) < staleBatchSize {
			return rebuilt, nil
		}
	}
}

// RepairSweep is the periodic safety net behind the scheduler: it drains
// the stale backlog across all courses and logs the outcome.
func (s *SummaryService) RepairSweep(ctx context.Context) {
	rebuilt, err := s.RebuildAllStale(ctx, 0)
	if err != nil {
		logger.Log.Errorf("Summary repair sweep failed after %d rebuilds: %v", rebuilt, err)
		return
	}
	if rebuilt > 0 {
		logger.Log.Infof("Summary repair sweep rebuilt %d stale rows", rebuilt)
	}
}

// ListAtRisk returns students at or over the missing-work threshold.
func (s *SummaryService) ListAtRisk(ctx context.Context, threshold int) ([]summary.AtRiskRow, error) {
	return s.summaryRepo.ListAtRisk(ctx, threshold)
}
