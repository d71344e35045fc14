package summary

import (
	"context"
)

// TargetCandidate is one reachable student's summary row, joined with the
// identity fields campaign selection needs.
type TargetCandidate struct {
	StudentID    int64
	CourseID     int64
	TotalMissing int
	FullName     string
	TelegramID   int64
}

// AtRiskRow is a summary row over the missing-work threshold, whether or
// not the student is reachable over chat.
type AtRiskRow struct {
	StudentID    int64
	CourseID     int64
	FullName     string
	TotalMissing int
	AvgAllPct    float64
	Reachable    bool
}

// Repository defines the summary cache operations.
type Repository interface {
	// Rebuild recomputes one row from current facts and clears its stale
	// flag. The implementation must serialize with concurrent writers so
	// that an invalidation landing during the rebuild is never lost and a
	// rebuild never observes a torn fact snapshot.
	Rebuild(ctx context.Context, studentID, courseID int64) (*CourseSummary, error)
	Get(ctx context.Context, studentID, courseID int64) (*CourseSummary, error)
	// ListStalePairs enumerates pairs whose row is stale or absent
	// (enrollments with no computed summary yet). courseID 0 means all
	// courses.
	ListStalePairs(ctx context.Context, courseID int64, limit int) ([]Pair, error)
	// ListTargetCandidates returns summary rows of students with a linked
	// chat identity. Threshold filtering and ordering happen in the target
	// selector so preview and send share one code path.
	ListTargetCandidates(ctx context.Context, courseID int64) ([]TargetCandidate, error)
	ListAtRisk(ctx context.Context, threshold int) ([]AtRiskRow, error)
}
