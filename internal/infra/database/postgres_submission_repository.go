package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"assignment_tracker_bot/internal/domain/submission"

	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrSubmissionNotFound = fmt.Errorf("submission not found")
var ErrUnknownStudent = fmt.Errorf("submission references unknown student")
var ErrUnknownAssignment = fmt.Errorf("submission references unknown assignment")
var ErrNotFlaggable = fmt.Errorf("submission is not missing, cannot be flagged")
var ErrNoPendingFlag = fmt.Errorf("no pending flag on this submission")

// PostgresSubmissionRepository is the fact store for submission rows.
// Every write path runs in one transaction with the dirty tracker so the
// affected (student, course) summary is marked stale atomically with the
// fact mutation. Integrity errors (unknown student/assignment) are
// rejected here and never reach the cache layer.
type PostgresSubmissionRepository struct {
	db      *sqlx.DB
	tracker *DirtyTracker
}

func NewPostgresSubmissionRepository(db *sqlx.DB, tracker *DirtyTracker) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db, tracker: tracker}
}

const factColumns = `id, student_id, assignment_id, status, score_raw, score_points, score_max, score_pct,
       flagged_by_student, flagged_at, flag_note, flag_verified, flag_verified_at, flag_verified_by,
       proof_file_id, proof_file_type, proof_caption, proof_uploaded_at, updated_at`

func scanFact(row interface{ Scan(...any) error }) (*submission.Fact, error) {
	f := &submission.Fact{}
	err := row.Scan(
		&f.ID, &f.StudentID, &f.AssignmentID, &f.Status, &f.ScoreRaw, &f.ScorePoints, &f.ScoreMax, &f.ScorePct,
		&f.FlaggedByStudent, &f.FlaggedAt, &f.FlagNote, &f.FlagVerified, &f.FlagVerifiedAt, &f.FlagVerifiedBy,
		&f.ProofFileID, &f.ProofFileType, &f.ProofCaption, &f.ProofUploadedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// assignmentCourse resolves the course an assignment belongs to, inside
// the caller's transaction. Doubles as the integrity check at the fact
// store boundary.
func assignmentCourse(ctx context.Context, tx *sqlx.Tx, assignmentID int64) (int64, error) {
	var courseID int64
	err := tx.QueryRowContext(ctx, `SELECT course_id FROM assignments WHERE id = $1`, assignmentID).Scan(&courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrUnknownAssignment
		}
		return 0, fmt.Errorf("error resolving assignment course: %w", err)
	}
	return courseID, nil
}

func (r *PostgresSubmissionRepository) Upsert(ctx context.Context, f *submission.Fact) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting submission upsert: %w", err)
	}
	defer tx.Rollback()

	courseID, err := assignmentCourse(ctx, tx, f.AssignmentID)
	if err != nil {
		return false, err
	}

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM submissions WHERE student_id = $1 AND assignment_id = $2`,
		f.StudentID, f.AssignmentID).Scan(&existingID)
	created := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("error checking existing submission: %w", err)
	}

	if created {
		query := `INSERT INTO submissions (student_id, assignment_id, status, score_raw, score_points, score_max, score_pct)
                  VALUES ($1, $2, $3, $4, $5, $6, $7)
                  RETURNING id, updated_at`
		err = tx.QueryRowContext(ctx, query,
			f.StudentID, f.AssignmentID, f.Status, f.ScoreRaw, f.ScorePoints, f.ScoreMax, f.ScorePct).
			Scan(&f.ID, &f.UpdatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "submissions_student_id_fkey") {
				return false, ErrUnknownStudent
			}
			return false, fmt.Errorf("error inserting submission: %w", err)
		}
	} else {
		query := `UPDATE submissions
                  SET status = $1, score_raw = $2, score_points = $3, score_max = $4, score_pct = $5,
                      updated_at = NOW()
                  WHERE id = $6
                  RETURNING updated_at`
		if err = tx.QueryRowContext(ctx, query,
			f.Status, f.ScoreRaw, f.ScorePoints, f.ScoreMax, f.ScorePct, existingID).Scan(&f.UpdatedAt); err != nil {
			return false, fmt.Errorf("error updating submission: %w", err)
		}
		f.ID = existingID
	}

	if err := r.tracker.MarkPairStale(ctx, tx, f.StudentID, courseID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing submission upsert: %w", err)
	}
	return created, nil
}

func (r *PostgresSubmissionRepository) Get(ctx context.Context, studentID, assignmentID int64) (*submission.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM submissions WHERE student_id = $1 AND assignment_id = $2`
	f, err := scanFact(r.db.QueryRowContext(ctx, query, studentID, assignmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting submission: %w", err)
	}
	return f, nil
}

func (r *PostgresSubmissionRepository) ListMissing(ctx context.Context, studentID, courseID int64) ([]submission.MissingItem, error) {
	// Assignments with no fact row count as missing, hence the left join
	// from the enrollment side.
	query := `SELECT a.id, a.title, a.due_date
              FROM assignments a
              JOIN enrollments e ON e.course_id = a.course_id AND e.student_id = $1
              LEFT JOIN submissions sub ON sub.assignment_id = a.id AND sub.student_id = $1
              WHERE a.is_active
                AND (sub.id IS NULL OR sub.status = 'Missing')
                AND ($2 = 0 OR a.course_id = $2)
              ORDER BY a.created_at`
	rows, err := r.db.QueryContext(ctx, query, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("error listing missing work: %w", err)
	}
	defer rows.Close()

	items := make([]submission.MissingItem, 0)
	for rows.Next() {
		var it submission.MissingItem
		if err := rows.Scan(&it.AssignmentID, &it.Title, &it.DueDate); err != nil {
			return nil, fmt.Errorf("error scanning missing item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missing items: %w", err)
	}
	return items, nil
}

func (r *PostgresSubmissionRepository) ListGrades(ctx context.Context, studentID, courseID int64, limit int) ([]submission.GradeItem, error) {
	query := `SELECT a.id, a.title, sub.status, sub.score_raw, sub.score_pct
              FROM submissions sub
              JOIN assignments a ON a.id = sub.assignment_id
              WHERE sub.student_id = $1
                AND a.is_active
                AND ($2 = 0 OR a.course_id = $2)
              ORDER BY a.created_at DESC
              LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, studentID, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing grades: %w", err)
	}
	defer rows.Close()

	items := make([]submission.GradeItem, 0)
	for rows.Next() {
		var it submission.GradeItem
		if err := rows.Scan(&it.AssignmentID, &it.Title, &it.Status, &it.ScoreRaw, &it.ScorePct); err != nil {
			return nil, fmt.Errorf("error scanning grade item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grade items: %w", err)
	}
	return items, nil
}

func (r *PostgresSubmissionRepository) Flag(ctx context.Context, studentID, assignmentID int64, note string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting flag: %w", err)
	}
	defer tx.Rollback()

	courseID, err := assignmentCourse(ctx, tx, assignmentID)
	if err != nil {
		return err
	}

	var noteVal sql.NullString
	if note != "" {
		noteVal = sql.NullString{String: note, Valid: true}
	}
	// Flagging resets any previous proof; a fresh dispute needs fresh evidence.
	query := `UPDATE submissions
              SET status = 'Flagged',
                  flagged_by_student = TRUE,
                  flagged_at = NOW(),
                  flag_note = $1,
                  flag_verified = FALSE,
                  flag_verified_at = NULL,
                  flag_verified_by = NULL,
                  proof_file_id = NULL,
                  proof_file_type = NULL,
                  proof_caption = NULL,
                  proof_uploaded_at = NULL,
                  updated_at = NOW()
              WHERE student_id = $2 AND assignment_id = $3 AND status = 'Missing'`
	result, err := tx.ExecContext(ctx, query, noteVal, studentID, assignmentID)
	if err != nil {
		return fmt.Errorf("error flagging submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading flag result: %w", err)
	}
	if affected == 0 {
		return ErrNotFlaggable
	}

	if err := r.tracker.MarkPairStale(ctx, tx, studentID, courseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing flag: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) AttachProof(ctx context.Context, studentID, assignmentID int64, fileID, fileType, caption string) error {
	var captionVal sql.NullString
	if caption != "" {
		captionVal = sql.NullString{String: caption, Valid: true}
	}
	// Proof metadata does not feed the aggregates, so no dirty mark here.
	query := `UPDATE submissions
              SET proof_file_id = $1,
                  proof_file_type = $2,
                  proof_caption = $3,
                  proof_uploaded_at = NOW(),
                  updated_at = NOW()
              WHERE student_id = $4 AND assignment_id = $5
                AND flagged_by_student AND NOT flag_verified`
	result, err := r.db.ExecContext(ctx, query, fileID, fileType, captionVal, studentID, assignmentID)
	if err != nil {
		return fmt.Errorf("error attaching proof: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading proof result: %w", err)
	}
	if affected == 0 {
		return ErrNoPendingFlag
	}
	return nil
}

func (r *PostgresSubmissionRepository) VerifyFlag(ctx context.Context, studentID, assignmentID int64, approved bool, verifier string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting flag verification: %w", err)
	}
	defer tx.Rollback()

	courseID, err := assignmentCourse(ctx, tx, assignmentID)
	if err != nil {
		return err
	}

	newStatus := submission.StatusMissing
	if approved {
		newStatus = submission.StatusSubmitted
	}
	query := `UPDATE submissions
              SET status = $1,
                  flag_verified = TRUE,
                  flag_verified_at = NOW(),
                  flag_verified_by = $2,
                  flagged_by_student = FALSE,
                  updated_at = NOW()
              WHERE student_id = $3 AND assignment_id = $4
                AND flagged_by_student AND NOT flag_verified`
	result, err := tx.ExecContext(ctx, query, newStatus, verifier, studentID, assignmentID)
	if err != nil {
		return fmt.Errorf("error verifying flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading verification result: %w", err)
	}
	if affected == 0 {
		return ErrNoPendingFlag
	}

	if err := r.tracker.MarkPairStale(ctx, tx, studentID, courseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing flag verification: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) ListPendingFlags(ctx context.Context) ([]submission.PendingFlag, error) {
	query := `SELECT s.id, s.full_name, s.telegram_id,
                     a.id, a.title, c.name,
                     sub.flagged_at, sub.flag_note,
                     sub.proof_file_id, sub.proof_file_type, sub.proof_caption, sub.proof_uploaded_at
              FROM submissions sub
              JOIN students s ON s.id = sub.student_id
              JOIN assignments a ON a.id = sub.assignment_id
              JOIN courses c ON c.id = a.course_id
              WHERE sub.flagged_by_student AND NOT sub.flag_verified
              ORDER BY sub.flagged_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing pending flags: %w", err)
	}
	defer rows.Close()

	flags := make([]submission.PendingFlag, 0)
	for rows.Next() {
		var pf submission.PendingFlag
		var flaggedAt sql.NullTime
		err := rows.Scan(
			&pf.StudentID, &pf.StudentName, &pf.StudentChatID,
			&pf.AssignmentID, &pf.AssignmentTitle, &pf.CourseName,
			&flaggedAt, &pf.FlagNote,
			&pf.ProofFileID, &pf.ProofFileType, &pf.ProofCaption, &pf.ProofUploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning pending flag: %w", err)
		}
		if flaggedAt.Valid {
			pf.FlaggedAt = flaggedAt.Time
		}
		flags = append(flags, pf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending flags: %w", err)
	}
	return flags, nil
}
