package submission

import (
	"database/sql"
	"time"
)

// Status classifies one (student, assignment) submission fact.
type Status string

const (
	StatusMissing   Status = "Missing"
	StatusSubmitted Status = "Submitted"
	StatusLate      Status = "Late"
	StatusGraded    Status = "Graded"
	// StatusFlagged marks a row a student has disputed; it counts toward
	// assigned work but neither toward submitted nor missing totals until
	// the teacher verifies the flag.
	StatusFlagged Status = "Flagged"
)

// CountsAsSubmitted reports whether the status belongs to the
// submitted-or-later group used by the summary counts.
func (s Status) CountsAsSubmitted() bool {
	return s == StatusSubmitted || s == StatusLate || s == StatusGraded
}

// Fact is the single frequently-mutated entity: one row per
// (student, assignment), unique on that pair. An assignment without a
// fact row is treated as StatusMissing with zero score.
type Fact struct {
	ID           int64
	StudentID    int64
	AssignmentID int64
	Status       Status
	ScoreRaw     sql.NullString
	ScorePoints  sql.NullFloat64
	ScoreMax     sql.NullFloat64
	ScorePct     sql.NullFloat64

	FlaggedByStudent bool
	FlaggedAt        sql.NullTime
	FlagNote         sql.NullString
	FlagVerified     bool
	FlagVerifiedAt   sql.NullTime
	FlagVerifiedBy   sql.NullString

	ProofFileID     sql.NullString
	ProofFileType   sql.NullString
	ProofCaption    sql.NullString
	ProofUploadedAt sql.NullTime

	UpdatedAt time.Time
}

// Scored reports whether the fact carries a recorded score.
func (f *Fact) Scored() bool {
	return f.ScorePoints.Valid
}
