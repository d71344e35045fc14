package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"assignment_tracker_bot/internal/domain/submission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExport(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const header = "course_id,course_name,student_id,student_name,assignment_id,assignment_title,due_date,max_score,status,score\n"

func TestParseFile_ValidCSV(t *testing.T) {
	path := writeExport(t, "export.csv", header+
		"crs-1,Algebra I,stu-1,Ada Lovelace,a-1,Homework 1,2026-09-01,10,Graded,8/10\n"+
		"crs-1,Algebra I,stu-2,Bea Chan,a-1,Homework 1,,,Missing,\n")

	rows, err := parseFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "crs-1", rows[0].CourseLMSID)
	assert.Equal(t, "Ada Lovelace", rows[0].StudentName)
	assert.Equal(t, submission.StatusGraded, rows[0].Status)
	assert.Equal(t, "8/10", rows[0].ScoreRaw)
	require.True(t, rows[0].DueDate.Valid)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), rows[0].DueDate.Time)
	require.True(t, rows[0].MaxScore.Valid)
	assert.Equal(t, 10.0, rows[0].MaxScore.Float64)

	assert.False(t, rows[1].DueDate.Valid)
	assert.False(t, rows[1].MaxScore.Valid)
}

func TestParseFile_TSV(t *testing.T) {
	content := "course_id\tcourse_name\tstudent_id\tstudent_name\tassignment_id\tassignment_title\tdue_date\tmax_score\tstatus\tscore\n" +
		"crs-1\tAlgebra I\tstu-1\tAda Lovelace\ta-1\tHomework 1\t\t\tSubmitted\t\n"
	path := writeExport(t, "export.tsv", content)

	rows, err := parseFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, submission.StatusSubmitted, rows[0].Status)
}

func TestParseFile_BadHeaderRejected(t *testing.T) {
	path := writeExport(t, "export.csv", "foo,bar\n")
	_, err := parseFile(path)
	assert.Error(t, err)
}

func TestParseFile_MissingKeyColumnsRejected(t *testing.T) {
	path := writeExport(t, "export.csv", header+
		"crs-1,Algebra I,,Ada Lovelace,a-1,Homework 1,,,Missing,\n")
	_, err := parseFile(path)
	assert.Error(t, err)
}

func TestParseFile_BadDueDateRejected(t *testing.T) {
	path := writeExport(t, "export.csv", header+
		"crs-1,Algebra I,stu-1,Ada Lovelace,a-1,Homework 1,next tuesday,,Missing,\n")
	_, err := parseFile(path)
	assert.Error(t, err)
}

func TestParseDate_AcceptedLayouts(t *testing.T) {
	for _, s := range []string{"2026-09-01", "2026-09-01 15:04", "2026-09-01T15:04:05Z"} {
		_, err := parseDate(s)
		assert.NoError(t, err, s)
	}
}
