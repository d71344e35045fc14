package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"assignment_tracker_bot/internal/app"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/infra/config"
	idb "assignment_tracker_bot/internal/infra/database"
	"assignment_tracker_bot/internal/infra/logger"
)

// Expected header of a gradebook export. Column order is fixed; the
// header row is validated and skipped.
var expectedHeader = []string{
	"course_id", "course_name", "student_id", "student_name",
	"assignment_id", "assignment_title", "due_date", "max_score",
	"status", "score",
}

func main() {
	filePath := flag.String("file", "", "path to the gradebook export (.csv or .tsv)")
	source := flag.String("source", "gradebook", "source label recorded in the sync log")
	dryRun := flag.Bool("dry-run", false, "parse and report without writing anything")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file <export.csv> [-source label] [-dry-run]")
		os.Exit(2)
	}

	rows, err := parseFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("Parsed %d row(s) from %s. Dry run, nothing written.\n", len(rows), *filePath)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: could not load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.Migrate(db); err != nil {
		logger.Log.Fatalf("Could not apply database schema: %v", err)
	}

	tracker := idb.NewDirtyTracker()
	studentRepo := idb.NewPostgresStudentRepository(db)
	courseRepo := idb.NewPostgresCourseRepository(db, tracker)
	submissionRepo := idb.NewPostgresSubmissionRepository(db, tracker)
	summaryRepo := idb.NewPostgresSummaryRepository(db)
	syncLogRepo := idb.NewPostgresSyncLogRepository(db)

	summarySvc := app.NewSummaryService(summaryRepo)
	importSvc := app.NewImportService(studentRepo, courseRepo, submissionRepo, summarySvc, syncLogRepo)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := importSvc.ImportBatch(ctx, *source, rows)
	if err != nil {
		logger.Log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Batch %s: %d added, %d updated, %d summaries rebuilt.\n",
		result.BatchID, result.RowsAdded, result.RowsUpdated, result.Rebuilt)
}

func parseFile(path string) ([]app.ImportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		r.Comma = '\t'
	}
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if err := checkHeader(records[0]); err != nil {
		return nil, err
	}

	rows := make([]app.ImportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(expectedHeader) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", i+2, len(expectedHeader), len(rec))
		}
		row := app.ImportRow{
			CourseLMSID:     strings.TrimSpace(rec[0]),
			CourseName:      strings.TrimSpace(rec[1]),
			StudentLMSID:    strings.TrimSpace(rec[2]),
			StudentName:     strings.TrimSpace(rec[3]),
			AssignmentLMSID: strings.TrimSpace(rec[4]),
			AssignmentTitle: strings.TrimSpace(rec[5]),
			Status:          submission.Status(strings.TrimSpace(rec[8])),
			ScoreRaw:        strings.TrimSpace(rec[9]),
		}
		if row.CourseLMSID == "" || row.StudentLMSID == "" || row.AssignmentLMSID == "" {
			return nil, fmt.Errorf("line %d: course_id, student_id and assignment_id are required", i+2)
		}
		if due := strings.TrimSpace(rec[6]); due != "" {
			t, err := parseDate(due)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad due_date %q", i+2, due)
			}
			row.DueDate = sql.NullTime{Time: t, Valid: true}
		}
		if max := strings.TrimSpace(rec[7]); max != "" {
			v, err := strconv.ParseFloat(max, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad max_score %q", i+2, max)
			}
			row.MaxScore = sql.NullFloat64{Float64: v, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func checkHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("unexpected header: want columns %s", strings.Join(expectedHeader, ", "))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), expectedHeader[i]) {
			return fmt.Errorf("unexpected header column %d: got %q, want %q", i+1, col, expectedHeader[i])
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
