package database

import (
	"context"
	"database/sql"
	"fmt"

	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/domain/summary"

	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrSummaryNotFound = fmt.Errorf("course summary not found")

// PostgresSummaryRepository is the summary cache. Rebuild serializes
// against fact writers through the summary row lock: the rebuild
// transaction upsert-locks the row first, then reads facts under that
// lock. A writer dirtying the pair either commits before the lock is
// taken (the rebuild sees its facts) or blocks until the rebuild
// commits (its stale mark lands after, so the pair is swept again).
// An invalidation is never lost.
type PostgresSummaryRepository struct {
	db *sqlx.DB
}

func NewPostgresSummaryRepository(db *sqlx.DB) *PostgresSummaryRepository {
	return &PostgresSummaryRepository{db: db}
}

const summaryColumns = `student_id, course_id, total_assigned, total_submitted, total_missing,
       total_late, total_graded, avg_submitted_pct, avg_all_pct, points_earned, points_possible,
       is_stale, stale_marked_at, last_synced`

func scanSummary(row interface{ Scan(...any) error }) (*summary.CourseSummary, error) {
	s := &summary.CourseSummary{}
	err := row.Scan(
		&s.StudentID, &s.CourseID, &s.TotalAssigned, &s.TotalSubmitted, &s.TotalMissing,
		&s.TotalLate, &s.TotalGraded, &s.AvgSubmittedPct, &s.AvgAllPct, &s.PointsEarned, &s.PointsPossible,
		&s.IsStale, &s.StaleMarkedAt, &s.LastSynced,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresSummaryRepository) Rebuild(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting summary rebuild: %w", err)
	}
	defer tx.Rollback()

	// Take the row lock before reading any fact. The no-op DO UPDATE is
	// deliberate: it locks an existing row without touching its stale
	// flag, and creates a stub row when none exists yet.
	lockQuery := `INSERT INTO course_summaries (student_id, course_id, is_stale, stale_marked_at)
                  VALUES ($1, $2, TRUE, NOW())
                  ON CONFLICT (student_id, course_id) DO UPDATE SET
                    is_stale = course_summaries.is_stale`
	if _, err := tx.ExecContext(ctx, lockQuery, studentID, courseID); err != nil {
		return nil, fmt.Errorf("error locking summary row: %w", err)
	}

	assignments, err := activeAssignmentsTx(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}
	facts, err := courseFactsTx(ctx, tx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	s := summary.Compute(studentID, courseID, assignments, facts)

	writeQuery := `UPDATE course_summaries
                   SET total_assigned = $1, total_submitted = $2, total_missing = $3,
                       total_late = $4, total_graded = $5, avg_submitted_pct = $6,
                       avg_all_pct = $7, points_earned = $8, points_possible = $9,
                       is_stale = FALSE, stale_marked_at = NULL, last_synced = NOW()
                   WHERE student_id = $10 AND course_id = $11
                   RETURNING last_synced`
	err = tx.QueryRowContext(ctx, writeQuery,
		s.TotalAssigned, s.TotalSubmitted, s.TotalMissing,
		s.TotalLate, s.TotalGraded, s.AvgSubmittedPct,
		s.AvgAllPct, s.PointsEarned, s.PointsPossible,
		studentID, courseID).Scan(&s.LastSynced)
	if err != nil {
		return nil, fmt.Errorf("error writing rebuilt summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing summary rebuild: %w", err)
	}
	return s, nil
}

func activeAssignmentsTx(ctx context.Context, tx *sqlx.Tx, courseID int64) ([]*course.Assignment, error) {
	query := `SELECT id, lms_id, course_id, title, due_date, max_score, is_active, created_at
              FROM assignments
              WHERE course_id = $1 AND is_active
              ORDER BY created_at`
	rows, err := tx.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("error reading assignments for rebuild: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func courseFactsTx(ctx context.Context, tx *sqlx.Tx, studentID, courseID int64) ([]*submission.Fact, error) {
	query := `SELECT ` + factColumns + `
              FROM submissions
              WHERE student_id = $1
                AND assignment_id IN (SELECT id FROM assignments WHERE course_id = $2)`
	rows, err := tx.QueryContext(ctx, query, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("error reading facts for rebuild: %w", err)
	}
	defer rows.Close()

	facts := make([]*submission.Fact, 0)
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning fact for rebuild: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts for rebuild: %w", err)
	}
	return facts, nil
}

func (r *PostgresSummaryRepository) Get(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM course_summaries
              WHERE student_id = $1 AND course_id = $2`
	s, err := scanSummary(r.db.QueryRowContext(ctx, query, studentID, courseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("error getting summary: %w", err)
	}
	return s, nil
}

func (r *PostgresSummaryRepository) ListStalePairs(ctx context.Context, courseID int64, limit int) ([]summary.Pair, error) {
	// Enrollments with no summary row yet count as stale too.
	query := `SELECT e.student_id, e.course_id
              FROM enrollments e
              LEFT JOIN course_summaries cs ON cs.student_id = e.student_id AND cs.course_id = e.course_id
              WHERE (cs.student_id IS NULL OR cs.is_stale)
                AND ($1 = 0 OR e.course_id = $1)
              ORDER BY e.student_id, e.course_id
              LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing stale pairs: %w", err)
	}
	defer rows.Close()

	pairs := make([]summary.Pair, 0)
	for rows.Next() {
		var p summary.Pair
		if err := rows.Scan(&p.StudentID, &p.CourseID); err != nil {
			return nil, fmt.Errorf("error scanning stale pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale pairs: %w", err)
	}
	return pairs, nil
}

func (r *PostgresSummaryRepository) ListTargetCandidates(ctx context.Context, courseID int64) ([]summary.TargetCandidate, error) {
	query := `SELECT cs.student_id, cs.course_id, cs.total_missing, s.full_name, s.telegram_id
              FROM course_summaries cs
              JOIN students s ON s.id = cs.student_id
              WHERE s.telegram_id IS NOT NULL
                AND ($1 = 0 OR cs.course_id = $1)`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("error listing target candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]summary.TargetCandidate, 0)
	for rows.Next() {
		var c summary.TargetCandidate
		if err := rows.Scan(&c.StudentID, &c.CourseID, &c.TotalMissing, &c.FullName, &c.TelegramID); err != nil {
			return nil, fmt.Errorf("error scanning target candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target candidates: %w", err)
	}
	return candidates, nil
}

func (r *PostgresSummaryRepository) ListAtRisk(ctx context.Context, threshold int) ([]summary.AtRiskRow, error) {
	query := `SELECT cs.student_id, cs.course_id, s.full_name, cs.total_missing, cs.avg_all_pct,
                     s.telegram_id IS NOT NULL
              FROM course_summaries cs
              JOIN students s ON s.id = cs.student_id
              WHERE cs.total_missing >= $1
              ORDER BY cs.total_missing DESC, s.full_name`
	rows, err := r.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("error listing at-risk students: %w", err)
	}
	defer rows.Close()

	atRisk := make([]summary.AtRiskRow, 0)
	for rows.Next() {
		var row summary.AtRiskRow
		if err := rows.Scan(&row.StudentID, &row.CourseID, &row.FullName, &row.TotalMissing, &row.AvgAllPct, &row.Reachable); err != nil {
			return nil, fmt.Errorf("error scanning at-risk row: %w", err)
		}
		atRisk = append(atRisk, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating at-risk rows: %w", err)
	}
	return atRisk, nil
}
