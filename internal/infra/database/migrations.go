package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema DDL, applied idempotently at startup.

const schemaStudents = `
CREATE TABLE IF NOT EXISTS students (
    id                BIGSERIAL PRIMARY KEY,
    lms_id            TEXT NOT NULL UNIQUE,
    full_name         TEXT NOT NULL,
    telegram_id       BIGINT UNIQUE,
    telegram_username TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_students_full_name ON students (LOWER(full_name));
`

const schemaCourses = `
CREATE TABLE IF NOT EXISTS courses (
    id         BIGSERIAL PRIMARY KEY,
    lms_id     TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS assignments (
    id         BIGSERIAL PRIMARY KEY,
    lms_id     TEXT NOT NULL UNIQUE,
    course_id  BIGINT NOT NULL REFERENCES courses(id),
    title      TEXT NOT NULL,
    due_date   TIMESTAMPTZ,
    max_score  DOUBLE PRECISION,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_assignments_course ON assignments (course_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS enrollments (
    student_id  BIGINT NOT NULL REFERENCES students(id),
    course_id   BIGINT NOT NULL REFERENCES courses(id),
    enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (student_id, course_id)
);
`

const schemaSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
    id                 BIGSERIAL PRIMARY KEY,
    student_id         BIGINT NOT NULL REFERENCES students(id),
    assignment_id      BIGINT NOT NULL REFERENCES assignments(id),
    status             TEXT NOT NULL DEFAULT 'Missing',
    score_raw          TEXT,
    score_points       DOUBLE PRECISION,
    score_max          DOUBLE PRECISION,
    score_pct          DOUBLE PRECISION,
    flagged_by_student BOOLEAN NOT NULL DEFAULT FALSE,
    flagged_at         TIMESTAMPTZ,
    flag_note          TEXT,
    flag_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    flag_verified_at   TIMESTAMPTZ,
    flag_verified_by   TEXT,
    proof_file_id      TEXT,
    proof_file_type    TEXT,
    proof_caption      TEXT,
    proof_uploaded_at  TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT submissions_valid_status CHECK (status IN ('Missing', 'Submitted', 'Late', 'Graded', 'Flagged')),
    UNIQUE (student_id, assignment_id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions (student_id);
`

const schemaSummaries = `
CREATE TABLE IF NOT EXISTS course_summaries (
    student_id        BIGINT NOT NULL REFERENCES students(id),
    course_id         BIGINT NOT NULL REFERENCES courses(id),
    total_assigned    INTEGER NOT NULL DEFAULT 0,
    total_submitted   INTEGER NOT NULL DEFAULT 0,
    total_missing     INTEGER NOT NULL DEFAULT 0,
    total_late        INTEGER NOT NULL DEFAULT 0,
    total_graded      INTEGER NOT NULL DEFAULT 0,
    avg_submitted_pct DOUBLE PRECISION,
    avg_all_pct       DOUBLE PRECISION NOT NULL DEFAULT 0,
    points_earned     DOUBLE PRECISION NOT NULL DEFAULT 0,
    points_possible   DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_stale          BOOLEAN NOT NULL DEFAULT TRUE,
    stale_marked_at   TIMESTAMPTZ,
    last_synced       TIMESTAMPTZ,
    PRIMARY KEY (student_id, course_id)
);
CREATE INDEX IF NOT EXISTS idx_course_summaries_stale ON course_summaries (course_id) WHERE is_stale;
`

const schemaCampaigns = `
CREATE TABLE IF NOT EXISTS campaign_jobs (
    id                BIGSERIAL PRIMARY KEY,
    created_by        TEXT NOT NULL,
    template_key      TEXT NOT NULL,
    template_text     TEXT,
    course_id         BIGINT REFERENCES courses(id),
    missing_threshold INTEGER NOT NULL DEFAULT 1,
    run_at            TIMESTAMPTZ NOT NULL,
    status            TEXT NOT NULL DEFAULT 'pending',
    target_count      INTEGER NOT NULL DEFAULT 0,
    sent_count        INTEGER NOT NULL DEFAULT 0,
    error             TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at        TIMESTAMPTZ,
    finished_at       TIMESTAMPTZ,
    CONSTRAINT campaign_jobs_valid_status CHECK (status IN ('pending', 'running', 'completed', 'failed'))
);
CREATE INDEX IF NOT EXISTS idx_campaign_jobs_due ON campaign_jobs (run_at) WHERE status = 'pending';
`

const schemaSyncLog = `
CREATE TABLE IF NOT EXISTS sync_log (
    id           BIGSERIAL PRIMARY KEY,
    batch_id     UUID NOT NULL UNIQUE,
    course_id    BIGINT REFERENCES courses(id),
    source       TEXT NOT NULL,
    rows_added   INTEGER NOT NULL DEFAULT 0,
    rows_updated INTEGER NOT NULL DEFAULT 0,
    notes        TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema. Every statement is idempotent so the call
// is safe on each startup.
func Migrate(db *sqlx.DB) error {
	for _, ddl := range []string{
		schemaStudents,
		schemaCourses,
		schemaSubmissions,
		schemaSummaries,
		schemaCampaigns,
		schemaSyncLog,
	} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
