package app

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/student"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/domain/synclog"
	"assignment_tracker_bot/internal/infra/logger"

	"github.com/google/uuid"
)

// Custom application-level errors for import
var ErrEmptyBatch = fmt.Errorf("import batch contains no rows")

// ImportRow is one LMS gradebook line, already split into fields by the
// caller. Scores arrive as the raw LMS string ("8/10", "85%", "42") and
// are normalized here.
type ImportRow struct {
	CourseLMSID     string
	CourseName      string
	StudentLMSID    string
	StudentName     string
	AssignmentLMSID string
	AssignmentTitle string
	DueDate         sql.NullTime
	MaxScore        sql.NullFloat64
	Status          submission.Status
	ScoreRaw        string
}

// ImportResult summarizes one processed batch.
type ImportResult struct {
	BatchID     uuid.UUID
	RowsAdded   int
	RowsUpdated int
	Rebuilt     int
}

// ImportService ingests gradebook batches: it upserts the reference
// entities, writes submission facts through the dirty-tracking store,
// rebuilds the dirtied summaries and appends one sync log entry per
// batch.
type ImportService struct {
	studentRepo    student.Repository
	courseRepo     course.Repository
	submissionRepo submission.Repository
	summarySvc     *SummaryService
	syncRepo       synclog.Repository
}

func NewImportService(
	str student.Repository,
	cr course.Repository,
	subr submission.Repository,
	ss *SummaryService,
	slr synclog.Repository,
) *ImportService {
	return &ImportService{
		studentRepo:    str,
		courseRepo:     cr,
		submissionRepo: subr,
		summarySvc:     ss,
		syncRepo:       slr,
	}
}

// ImportBatch processes rows in order. A row error aborts the batch;
// rows already written stay written and their summaries are already
// marked stale, so a later sweep repairs them even if this call never
// reaches its own rebuild step.
func (s *ImportService) ImportBatch(ctx context.Context, source string, rows []ImportRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	result := &ImportResult{BatchID: uuid.New()}
	courseIDs := make(map[string]int64)
	studentIDs := make(map[string]int64)
	assignmentIDs := make(map[string]int64)
	touchedCourses := make(map[int64]bool)

	for i, row := range rows {
		courseID, ok := courseIDs[row.CourseLMSID]
		if !ok {
			c := &course.Course{LMSID: row.CourseLMSID, Name: row.CourseName}
			if err := s.courseRepo.UpsertCourse(ctx, c); err != nil {
				return result, fmt.Errorf("row %d: %w", i+1, err)
			}
			courseID = c.ID
			courseIDs[row.CourseLMSID] = courseID
		}
		touchedCourses[courseID] = true

		studentID, ok := studentIDs[row.StudentLMSID]
		if !ok {
			st := &student.Student{LMSID: row.StudentLMSID, FullName: row.StudentName}
			if err := s.studentRepo.Upsert(ctx, st); err != nil {
				return result, fmt.Errorf("row %d: %w", i+1, err)
			}
			studentID = st.ID
			studentIDs[row.StudentLMSID] = studentID
		}
		if err := s.studentRepo.Enroll(ctx, studentID, courseID); err != nil {
			return result, fmt.Errorf("row %d: %w", i+1, err)
		}

		assignmentID, ok := assignmentIDs[row.AssignmentLMSID]
		if !ok {
			a := &course.Assignment{
				LMSID:    row.AssignmentLMSID,
				CourseID: courseID,
				Title:    row.AssignmentTitle,
				DueDate:  row.DueDate,
				MaxScore: row.MaxScore,
			}
			if err := s.courseRepo.UpsertAssignment(ctx, a); err != nil {
				return result, fmt.Errorf("row %d: %w", i+1, err)
			}
			assignmentID = a.ID
			assignmentIDs[row.AssignmentLMSID] = assignmentID
		}

		fact := &submission.Fact{
			StudentID:    studentID,
			AssignmentID: assignmentID,
			Status:       normalizeStatus(row.Status),
		}
		applyScore(fact, row.ScoreRaw, row.MaxScore)
		created, err := s.submissionRepo.Upsert(ctx, fact)
		if err != nil {
			return result, fmt.Errorf("row %d: %w", i+1, err)
		}
		if created {
			result.RowsAdded++
		} else {
			result.RowsUpdated++
		}
	}

	for courseID := range touchedCourses {
		rebuilt, err := s.summarySvc.RebuildAllStale(ctx, courseID)
		result.Rebuilt += rebuilt
		if err != nil {
			return result, fmt.Errorf("post-import rebuild for course %d: %w", courseID, err)
		}
	}

	entry := &synclog.Entry{
		BatchID:     result.BatchID,
		Source:      source,
		RowsAdded:   result.RowsAdded,
		RowsUpdated: result.RowsUpdated,
	}
	if len(touchedCourses) == 1 {
		for id := range touchedCourses {
			entry.CourseID = sql.NullInt64{Int64: id, Valid: true}
		}
	}
	if err := s.syncRepo.Append(ctx, entry); err != nil {
		return result, fmt.Errorf("failed to append sync log: %w", err)
	}

	logger.Log.Infof("Import batch %s from %s: %d added, %d updated, %d summaries rebuilt",
		result.BatchID, source, result.RowsAdded, result.RowsUpdated, result.Rebuilt)
	return result, nil
}

// ListRecentBatches returns the latest sync log entries.
func (s *ImportService) ListRecentBatches(ctx context.Context, limit int) ([]*synclog.Entry, error) {
	return s.syncRepo.ListRecent(ctx, limit)
}

func normalizeStatus(st submission.Status) submission.Status {
	switch st {
	case submission.StatusMissing, submission.StatusSubmitted, submission.StatusLate,
		submission.StatusGraded, submission.StatusFlagged:
		return st
	}
	return submission.StatusMissing
}

// applyScore normalizes the raw LMS score string onto the fact. Accepted
// shapes: "8/10" (points and max), "85%" (percentage only) and "42"
// (points only, max taken from the assignment when known).
func applyScore(f *submission.Fact, raw string, assignmentMax sql.NullFloat64) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	f.ScoreRaw = sql.NullString{String: raw, Valid: true}

	if slash := strings.IndexByte(raw, '/'); slash >= 0 {
		points, errP := strconv.ParseFloat(strings.TrimSpace(raw[:slash]), 64)
		max, errM := strconv.ParseFloat(strings.TrimSpace(raw[slash+1:]), 64)
		if errP != nil || errM != nil {
			return
		}
		f.ScorePoints = sql.NullFloat64{Float64: points, Valid: true}
		f.ScoreMax = sql.NullFloat64{Float64: max, Valid: true}
		if max > 0 {
			f.ScorePct = sql.NullFloat64{Float64: points / max * 100, Valid: true}
		}
		return
	}

	if strings.HasSuffix(raw, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(raw, "%")), 64)
		if err != nil {
			return
		}
		f.ScorePct = sql.NullFloat64{Float64: pct, Valid: true}
		return
	}

	points, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	f.ScorePoints = sql.NullFloat64{Float64: points, Valid: true}
	if assignmentMax.Valid && assignmentMax.Float64 > 0 {
		f.ScoreMax = assignmentMax
		f.ScorePct = sql.NullFloat64{Float64: points / assignmentMax.Float64 * 100, Valid: true}
	}
}
