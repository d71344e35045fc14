package database

import (
	"context"
	"database/sql"
	"fmt"

	"assignment_tracker_bot/internal/domain/course"

	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrCourseNotFound = fmt.Errorf("course not found")
var ErrAssignmentNotFound = fmt.Errorf("assignment not found")

// PostgresCourseRepository owns courses and assignments. Assignment write
// paths run in a transaction that also dirties every enrolled student's
// summary row, since an assignment change shifts all of their aggregates.
type PostgresCourseRepository struct {
	db      *sqlx.DB
	tracker *DirtyTracker
}

func NewPostgresCourseRepository(db *sqlx.DB, tracker *DirtyTracker) *PostgresCourseRepository {
	return &PostgresCourseRepository{db: db, tracker: tracker}
}

func (r *PostgresCourseRepository) UpsertCourse(ctx context.Context, c *course.Course) error {
	query := `INSERT INTO courses (lms_id, name)
              VALUES ($1, $2)
              ON CONFLICT (lms_id) DO UPDATE SET name = EXCLUDED.name
              RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, query, c.LMSID, c.Name).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("error upserting course: %w", err)
	}
	return nil
}

func (r *PostgresCourseRepository) GetCourse(ctx context.Context, id int64) (*course.Course, error) {
	query := `SELECT id, lms_id, name, created_at FROM courses WHERE id = $1`
	c := &course.Course{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.LMSID, &c.Name, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("error getting course: %w", err)
	}
	return c, nil
}

func (r *PostgresCourseRepository) GetCourseByLMSID(ctx context.Context, lmsID string) (*course.Course, error) {
	query := `SELECT id, lms_id, name, created_at FROM courses WHERE lms_id = $1`
	c := &course.Course{}
	err := r.db.QueryRowContext(ctx, query, lmsID).Scan(&c.ID, &c.LMSID, &c.Name, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("error getting course by LMS ID: %w", err)
	}
	return c, nil
}

func (r *PostgresCourseRepository) ListCourses(ctx context.Context) ([]*course.Course, error) {
	query := `SELECT id, lms_id, name, created_at FROM courses ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing courses: %w", err)
	}
	defer rows.Close()

	courses := make([]*course.Course, 0)
	for rows.Next() {
		c := &course.Course{}
		if err := rows.Scan(&c.ID, &c.LMSID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}
	return courses, nil
}

func (r *PostgresCourseRepository) ListEnrolledCourses(ctx context.Context, studentID int64) ([]*course.Course, error) {
	query := `SELECT c.id, c.lms_id, c.name, c.created_at
              FROM courses c
              JOIN enrollments e ON e.course_id = c.id
              WHERE e.student_id = $1
              ORDER BY c.name`
	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("error listing enrolled courses: %w", err)
	}
	defer rows.Close()

	courses := make([]*course.Course, 0)
	for rows.Next() {
		c := &course.Course{}
		if err := rows.Scan(&c.ID, &c.LMSID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning enrolled course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrolled courses: %w", err)
	}
	return courses, nil
}

func (r *PostgresCourseRepository) UpsertAssignment(ctx context.Context, a *course.Assignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting assignment upsert: %w", err)
	}
	defer tx.Rollback()

	// Keep the larger max_score when both sides carry one; re-imports must
	// not shrink points_possible for already-graded work.
	query := `INSERT INTO assignments (lms_id, course_id, title, due_date, max_score, is_active)
              VALUES ($1, $2, $3, $4, $5, TRUE)
              ON CONFLICT (lms_id) DO UPDATE SET
                title = EXCLUDED.title,
                due_date = COALESCE(EXCLUDED.due_date, assignments.due_date),
                max_score = CASE
                  WHEN assignments.max_score IS NULL THEN EXCLUDED.max_score
                  WHEN EXCLUDED.max_score IS NULL THEN assignments.max_score
                  ELSE GREATEST(assignments.max_score, EXCLUDED.max_score)
                END,
                is_active = TRUE
              RETURNING id, is_active, created_at`
	err = tx.QueryRowContext(ctx, query, a.LMSID, a.CourseID, a.Title, a.DueDate, a.MaxScore).
		Scan(&a.ID, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("error upserting assignment: %w", err)
	}

	if err := r.tracker.MarkCourseStale(ctx, tx, a.CourseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing assignment upsert: %w", err)
	}
	return nil
}

func (r *PostgresCourseRepository) GetAssignment(ctx context.Context, id int64) (*course.Assignment, error) {
	query := `SELECT id, lms_id, course_id, title, due_date, max_score, is_active, created_at
              FROM assignments WHERE id = $1`
	a := &course.Assignment{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.LMSID, &a.CourseID, &a.Title, &a.DueDate, &a.MaxScore, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("error getting assignment: %w", err)
	}
	return a, nil
}

func (r *PostgresCourseRepository) ListActiveAssignments(ctx context.Context, courseID int64) ([]*course.Assignment, error) {
	query := `SELECT id, lms_id, course_id, title, due_date, max_score, is_active, created_at
              FROM assignments
              WHERE course_id = $1 AND is_active
              ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("error listing active assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (r *PostgresCourseRepository) RetireAssignment(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting assignment retire: %w", err)
	}
	defer tx.Rollback()

	var courseID int64
	query := `UPDATE assignments SET is_active = FALSE WHERE id = $1 RETURNING course_id`
	if err := tx.QueryRowContext(ctx, query, id).Scan(&courseID); err != nil {
		if err == sql.ErrNoRows {
			return ErrAssignmentNotFound
		}
		return fmt.Errorf("error retiring assignment: %w", err)
	}

	if err := r.tracker.MarkCourseStale(ctx, tx, courseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing assignment retire: %w", err)
	}
	return nil
}

func collectAssignments(rows *sql.Rows) ([]*course.Assignment, error) {
	assignments := make([]*course.Assignment, 0)
	for rows.Next() {
		a := &course.Assignment{}
		if err := rows.Scan(&a.ID, &a.LMSID, &a.CourseID, &a.Title, &a.DueDate, &a.MaxScore, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return assignments, nil
}
