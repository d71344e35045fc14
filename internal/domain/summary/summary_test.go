package summary

import (
	"database/sql"
	"testing"

	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/submission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAssignments(n int, max float64) []*course.Assignment {
	out := make([]*course.Assignment, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &course.Assignment{
			ID:       int64(i),
			CourseID: 7,
			MaxScore: sql.NullFloat64{Float64: max, Valid: true},
		})
	}
	return out
}

func scoredFact(assignmentID int64, status submission.Status, points, max float64) *submission.Fact {
	return &submission.Fact{
		StudentID:    1,
		AssignmentID: assignmentID,
		Status:       status,
		ScorePoints:  sql.NullFloat64{Float64: points, Valid: true},
		ScoreMax:     sql.NullFloat64{Float64: max, Valid: true},
		ScorePct:     sql.NullFloat64{Float64: points / max * 100, Valid: true},
	}
}

func TestCompute_FiveAssignmentCourse(t *testing.T) {
	// 5 assignments of 10 points: two graded 8/10, one late 6/10, one
	// recorded missing, one with no fact row at all.
	assignments := makeAssignments(5, 10)
	facts := []*submission.Fact{
		scoredFact(1, submission.StatusGraded, 8, 10),
		scoredFact(2, submission.StatusGraded, 8, 10),
		scoredFact(3, submission.StatusLate, 6, 10),
		{StudentID: 1, AssignmentID: 4, Status: submission.StatusMissing},
	}

	s := Compute(1, 7, assignments, facts)

	assert.Equal(t, 5, s.TotalAssigned)
	assert.Equal(t, 3, s.TotalSubmitted)
	assert.Equal(t, 2, s.TotalMissing)
	assert.Equal(t, 1, s.TotalLate)
	assert.Equal(t, 2, s.TotalGraded)
	require.True(t, s.AvgSubmittedPct.Valid)
	assert.Equal(t, 73.33, s.AvgSubmittedPct.Float64)
	assert.Equal(t, 44.0, s.AvgAllPct)
	assert.Equal(t, 22.0, s.PointsEarned)
	assert.Equal(t, 50.0, s.PointsPossible)
}

func TestCompute_NoFactsMeansAllMissing(t *testing.T) {
	s := Compute(1, 7, makeAssignments(3, 20), nil)

	assert.Equal(t, 3, s.TotalAssigned)
	assert.Equal(t, 3, s.TotalMissing)
	assert.Equal(t, 0, s.TotalSubmitted)
	assert.False(t, s.AvgSubmittedPct.Valid)
	assert.Equal(t, 0.0, s.AvgAllPct)
	assert.Equal(t, 60.0, s.PointsPossible)
}

func TestCompute_EmptyCourse(t *testing.T) {
	s := Compute(1, 7, nil, nil)

	assert.Equal(t, 0, s.TotalAssigned)
	assert.Equal(t, 0, s.TotalMissing)
	assert.False(t, s.AvgSubmittedPct.Valid)
	assert.Equal(t, 0.0, s.AvgAllPct)
	assert.Equal(t, 0.0, s.PointsPossible)
}

func TestCompute_FlaggedCountsOnlyAsAssigned(t *testing.T) {
	assignments := makeAssignments(2, 10)
	facts := []*submission.Fact{
		{StudentID: 1, AssignmentID: 1, Status: submission.StatusFlagged},
		scoredFact(2, submission.StatusSubmitted, 9, 10),
	}

	s := Compute(1, 7, assignments, facts)

	assert.Equal(t, 2, s.TotalAssigned)
	assert.Equal(t, 1, s.TotalSubmitted)
	assert.Equal(t, 0, s.TotalMissing, "a flagged row is under dispute, not missing")
	assert.Equal(t, 45.0, s.AvgAllPct)
}

func TestCompute_IgnoresFactsForRetiredAssignments(t *testing.T) {
	assignments := makeAssignments(1, 10)
	facts := []*submission.Fact{
		scoredFact(1, submission.StatusGraded, 10, 10),
		scoredFact(99, submission.StatusGraded, 10, 10),
	}

	s := Compute(1, 7, assignments, facts)

	assert.Equal(t, 1, s.TotalAssigned)
	assert.Equal(t, 1, s.TotalGraded)
	assert.Equal(t, 10.0, s.PointsEarned)
}

func TestCompute_SubmittedWithoutScoreExcludedFromSubmittedAvg(t *testing.T) {
	assignments := makeAssignments(2, 10)
	facts := []*submission.Fact{
		{StudentID: 1, AssignmentID: 1, Status: submission.StatusSubmitted},
		scoredFact(2, submission.StatusGraded, 5, 10),
	}

	s := Compute(1, 7, assignments, facts)

	assert.Equal(t, 2, s.TotalSubmitted)
	require.True(t, s.AvgSubmittedPct.Valid)
	assert.Equal(t, 50.0, s.AvgSubmittedPct.Float64, "only the scored row feeds the submitted average")
	assert.Equal(t, 25.0, s.AvgAllPct)
}

func TestCompute_Deterministic(t *testing.T) {
	assignments := makeAssignments(4, 10)
	facts := []*submission.Fact{
		scoredFact(1, submission.StatusGraded, 7, 10),
		scoredFact(3, submission.StatusLate, 5, 10),
	}

	first := Compute(1, 7, assignments, facts)
	second := Compute(1, 7, assignments, facts)
	assert.Equal(t, first, second)
}
