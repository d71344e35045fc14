package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirtyTracker marks course summary rows stale. It is invoked by every
// fact-store write path inside the writing transaction, so no submission
// or assignment mutation can commit without its invalidation. It only
// flags, never aggregates: recomputation belongs to the rebuilder.
//
// When no summary row exists yet for a pair, a value-less stub row is
// inserted with the stale flag set ("stale with no computed value").
// The stub also gives the writing transaction a row to lock, which is
// what serializes invalidation against a rebuild in flight (see
// PostgresSummaryRepository.Rebuild).
type DirtyTracker struct{}

func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{}
}

// MarkPairStale flags one (student, course) summary row within the
// caller's transaction.
func (t *DirtyTracker) MarkPairStale(ctx context.Context, exec sqlx.ExtContext, studentID, courseID int64) error {
	query := `INSERT INTO course_summaries (student_id, course_id, is_stale, stale_marked_at)
              VALUES ($1, $2, TRUE, NOW())
              ON CONFLICT (student_id, course_id) DO UPDATE SET
                is_stale = TRUE,
                stale_marked_at = NOW()`
	if _, err := exec.ExecContext(ctx, query, studentID, courseID); err != nil {
		return fmt.Errorf("error marking summary stale for student %d course %d: %w", studentID, courseID, err)
	}
	return nil
}

// MarkCourseStale flags the summary row of every student enrolled in the
// course. Used by assignment mutations, which affect all enrollees.
func (t *DirtyTracker) MarkCourseStale(ctx context.Context, exec sqlx.ExtContext, courseID int64) error {
	query := `INSERT INTO course_summaries (student_id, course_id, is_stale, stale_marked_at)
              SELECT e.student_id, e.course_id, TRUE, NOW()
              FROM enrollments e
              WHERE e.course_id = $1
              ON CONFLICT (student_id, course_id) DO UPDATE SET
                is_stale = TRUE,
                stale_marked_at = NOW()`
	if _, err := exec.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("error marking summaries stale for course %d: %w", courseID, err)
	}
	return nil
}
