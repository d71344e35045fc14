package synclog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Entry records one bulk import/sync batch. Rows are written once per
// batch and never mutated.
type Entry struct {
	ID          int64
	BatchID     uuid.UUID
	CourseID    sql.NullInt64
	Source      string
	RowsAdded   int
	RowsUpdated int
	Notes       sql.NullString
	CreatedAt   time.Time
}

// Repository is the append-only sync log store.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}
