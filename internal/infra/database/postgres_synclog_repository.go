package database

import (
	"context"
	"fmt"

	"assignment_tracker_bot/internal/domain/synclog"

	"github.com/jmoiron/sqlx"
)

type PostgresSyncLogRepository struct {
	db *sqlx.DB
}

func NewPostgresSyncLogRepository(db *sqlx.DB) *PostgresSyncLogRepository {
	return &PostgresSyncLogRepository{db: db}
}

func (r *PostgresSyncLogRepository) Append(ctx context.Context, e *synclog.Entry) error {
	query := `INSERT INTO sync_log (batch_id, course_id, source, rows_added, rows_updated, notes)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		e.BatchID, e.CourseID, e.Source, e.RowsAdded, e.RowsUpdated, e.Notes).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending sync log entry: %w", err)
	}
	return nil
}

func (r *PostgresSyncLogRepository) ListRecent(ctx context.Context, limit int) ([]*synclog.Entry, error) {
	query := `SELECT id, batch_id, course_id, source, rows_added, rows_updated, notes, created_at
              FROM sync_log
              ORDER BY created_at DESC
              LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing sync log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*synclog.Entry, 0)
	for rows.Next() {
		e := &synclog.Entry{}
		if err := rows.Scan(&e.ID, &e.BatchID, &e.CourseID, &e.Source, &e.RowsAdded, &e.RowsUpdated, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning sync log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log entries: %w", err)
	}
	return entries, nil
}
