package course

import (
	"database/sql"
	"time"
)

// Course is a stable grouping of assignments, identified by its LMS id.
// Courses and assignments are created and updated only by the importer.
type Course struct {
	ID        int64
	LMSID     string
	Name      string
	CreatedAt time.Time
}

// Assignment belongs to exactly one course. Retired assignments keep their
// row with IsActive cleared; only active assignments count toward summaries.
type Assignment struct {
	ID        int64
	LMSID     string
	CourseID  int64
	Title     string
	DueDate   sql.NullTime
	MaxScore  sql.NullFloat64
	IsActive  bool
	CreatedAt time.Time
}
