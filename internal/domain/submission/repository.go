package submission

import (
	"context"
	"database/sql"
	"time"
)

// MissingItem is one still-missing assignment for a student, used by the
// bot's missing-work list and by campaign message rendering.
type MissingItem struct {
	AssignmentID int64
	Title        string
	DueDate      sql.NullTime
}

// GradeItem is one graded/submitted row for the student's grade list.
type GradeItem struct {
	AssignmentID int64
	Title        string
	Status       Status
	ScoreRaw     sql.NullString
	ScorePct     sql.NullFloat64
}

// PendingFlag is a student-raised dispute awaiting teacher verification.
type PendingFlag struct {
	StudentID       int64
	StudentName     string
	StudentChatID   sql.NullInt64
	AssignmentID    int64
	AssignmentTitle string
	CourseName      string
	FlaggedAt       time.Time
	FlagNote        sql.NullString
	ProofFileID     sql.NullString
	ProofFileType   sql.NullString
	ProofCaption    sql.NullString
	ProofUploadedAt sql.NullTime
}

// Repository is the fact store for submission rows. Every write path must
// mark the affected (student, course) summary stale in the same
// transaction, and must reject rows referencing unknown students or
// assignments at this boundary.
type Repository interface {
	// Upsert inserts or updates the fact keyed on (StudentID, AssignmentID).
	// The returned flag is true when a new row was created.
	Upsert(ctx context.Context, f *Fact) (created bool, err error)
	Get(ctx context.Context, studentID, assignmentID int64) (*Fact, error)

	// ListMissing returns active assignments the student still owes,
	// including assignments with no fact row at all. courseID 0 means all
	// courses. Ordered by assignment creation time.
	ListMissing(ctx context.Context, studentID, courseID int64) ([]MissingItem, error)
	ListGrades(ctx context.Context, studentID, courseID int64, limit int) ([]GradeItem, error)

	// Flag marks a missing submission as disputed by the student.
	Flag(ctx context.Context, studentID, assignmentID int64, note string) error
	AttachProof(ctx context.Context, studentID, assignmentID int64, fileID, fileType, caption string) error
	// VerifyFlag resolves a dispute: approved rows become Submitted,
	// rejected rows revert to Missing.
	VerifyFlag(ctx context.Context, studentID, assignmentID int64, approved bool, verifier string) error
	ListPendingFlags(ctx context.Context) ([]PendingFlag, error)
}
