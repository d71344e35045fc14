package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"assignment_tracker_bot/internal/domain/student"

	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrStudentNotFound = fmt.Errorf("student not found")
var ErrDuplicateTelegramID = fmt.Errorf("student with this Telegram ID already exists")
var ErrStudentNotLinkable = fmt.Errorf("student unknown or already linked")

type PostgresStudentRepository struct {
	db *sqlx.DB
}

func NewPostgresStudentRepository(db *sqlx.DB) *PostgresStudentRepository {
	return &PostgresStudentRepository{db: db}
}

const studentColumns = `id, lms_id, full_name, telegram_id, telegram_username, created_at`

func scanStudent(row interface{ Scan(...any) error }) (*student.Student, error) {
	s := &student.Student{}
	err := row.Scan(&s.ID, &s.LMSID, &s.FullName, &s.TelegramID, &s.TelegramUsername, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresStudentRepository) Upsert(ctx context.Context, s *student.Student) error {
	query := `INSERT INTO students (lms_id, full_name)
              VALUES ($1, $2)
              ON CONFLICT (lms_id) DO UPDATE SET full_name = EXCLUDED.full_name
              RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, s.LMSID, s.FullName).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("error upserting student: %w", err)
	}
	return nil
}

func (r *PostgresStudentRepository) GetByID(ctx context.Context, id int64) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	s, err := scanStudent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("error getting student by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresStudentRepository) GetByLMSID(ctx context.Context, lmsID string) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE lms_id = $1`
	s, err := scanStudent(r.db.QueryRowContext(ctx, query, strings.TrimSpace(lmsID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("error getting student by LMS ID: %w", err)
	}
	return s, nil
}

func (r *PostgresStudentRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE telegram_id = $1`
	s, err := scanStudent(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("error getting student by Telegram ID: %w", err)
	}
	return s, nil
}

func (r *PostgresStudentRepository) SearchByName(ctx context.Context, query string) ([]*student.Student, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	sqlQuery := `SELECT ` + studentColumns + ` FROM students
                 WHERE LOWER(full_name) LIKE LOWER($1)
                 ORDER BY full_name`
	rows, err := r.db.QueryContext(ctx, sqlQuery, pattern)
	if err != nil {
		return nil, fmt.Errorf("error searching students by name: %w", err)
	}
	defer rows.Close()
	return collectStudents(rows)
}

func (r *PostgresStudentRepository) LinkTelegram(ctx context.Context, lmsID string, telegramID int64, username string) error {
	var usernameVal sql.NullString
	if username != "" {
		usernameVal = sql.NullString{String: username, Valid: true}
	}
	query := `UPDATE students
              SET telegram_id = $1, telegram_username = $2
              WHERE lms_id = $3 AND telegram_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, telegramID, usernameVal, strings.TrimSpace(lmsID))
	if err != nil {
		if strings.Contains(err.Error(), "students_telegram_id_key") {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error linking student telegram: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading link result: %w", err)
	}
	if affected == 0 {
		return ErrStudentNotLinkable
	}
	return nil
}

func (r *PostgresStudentRepository) UnlinkTelegram(ctx context.Context, telegramID int64) error {
	query := `UPDATE students
              SET telegram_id = NULL, telegram_username = NULL
              WHERE telegram_id = $1`
	result, err := r.db.ExecContext(ctx, query, telegramID)
	if err != nil {
		return fmt.Errorf("error unlinking student telegram: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading unlink result: %w", err)
	}
	if affected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *PostgresStudentRepository) Enroll(ctx context.Context, studentID, courseID int64) error {
	query := `INSERT INTO enrollments (student_id, course_id)
              VALUES ($1, $2)
              ON CONFLICT (student_id, course_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID); err != nil {
		return fmt.Errorf("error enrolling student %d in course %d: %w", studentID, courseID, err)
	}
	return nil
}

func (r *PostgresStudentRepository) ListAll(ctx context.Context) ([]*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students ORDER BY full_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing students: %w", err)
	}
	defer rows.Close()
	return collectStudents(rows)
}

func collectStudents(rows *sql.Rows) ([]*student.Student, error) {
	students := make([]*student.Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return students, nil
}
