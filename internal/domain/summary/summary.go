// Package summary holds the derived per-(student, course) completion
// aggregate: the only cached state in the system. Rows are recomputed
// from submission facts by the rebuilder and invalidated by the dirty
// tracker; nothing else may write them.
package summary

import (
	"database/sql"
	"math"

	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/submission"
)

// Pair identifies one summary row.
type Pair struct {
	StudentID int64
	CourseID  int64
}

// CourseSummary is the materialized aggregate for one (student, course)
// pair. Invariant: when IsStale is false, every value equals the pure
// function Compute of the current facts for the pair.
type CourseSummary struct {
	StudentID      int64
	CourseID       int64
	TotalAssigned  int
	TotalSubmitted int
	TotalMissing   int
	TotalLate      int
	TotalGraded    int
	// AvgSubmittedPct is the mean score over submitted-or-later rows that
	// carry a score; null when no such rows exist.
	AvgSubmittedPct sql.NullFloat64
	// AvgAllPct is the mean score over every assigned row, counting
	// scoreless rows (including missing work) as 0.
	AvgAllPct      float64
	PointsEarned   float64
	PointsPossible float64
	IsStale        bool
	StaleMarkedAt  sql.NullTime
	LastSynced     sql.NullTime
}

// Compute derives the summary row for one pair from the course's active
// assignments and the student's submission facts against them. An
// assignment without a fact row counts as Missing with zero score. Facts
// for assignments outside the given list (retired ones) are ignored.
// The function is pure: the same inputs always yield the same row.
func Compute(studentID, courseID int64, assignments []*course.Assignment, facts []*submission.Fact) *CourseSummary {
	byAssignment := make(map[int64]*submission.Fact, len(facts))
	for _, f := range facts {
		byAssignment[f.AssignmentID] = f
	}

	s := &CourseSummary{
		StudentID:     studentID,
		CourseID:      courseID,
		TotalAssigned: len(assignments),
	}

	var submittedPctSum float64
	var submittedPctN int
	var allPctSum float64

	for _, a := range assignments {
		if a.MaxScore.Valid {
			s.PointsPossible += a.MaxScore.Float64
		}

		f := byAssignment[a.ID]
		if f == nil {
			s.TotalMissing++
			continue
		}

		switch f.Status {
		case submission.StatusMissing:
			s.TotalMissing++
		case submission.StatusLate:
			s.TotalLate++
		case submission.StatusGraded:
			s.TotalGraded++
		}
		if f.Status.CountsAsSubmitted() {
			s.TotalSubmitted++
			if f.ScorePct.Valid {
				submittedPctSum += f.ScorePct.Float64
				submittedPctN++
			}
		}
		if f.ScorePct.Valid {
			allPctSum += f.ScorePct.Float64
		}
		if f.ScorePoints.Valid {
			s.PointsEarned += f.ScorePoints.Float64
		}
	}

	if submittedPctN > 0 {
		s.AvgSubmittedPct = sql.NullFloat64{
			Float64: round2(submittedPctSum / float64(submittedPctN)),
			Valid:   true,
		}
	}
	if s.TotalAssigned > 0 {
		s.AvgAllPct = round2(allPctSum / float64(s.TotalAssigned))
	}
	s.PointsEarned = round2(s.PointsEarned)
	s.PointsPossible = round2(s.PointsPossible)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
