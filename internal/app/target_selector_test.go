package app

import (
	"context"
	"testing"

	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/domain/summary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTargets_ThresholdAndOrdering(t *testing.T) {
	summaryRepo := newFakeSummaryRepo()
	summaryRepo.candidates = []summary.TargetCandidate{
		{StudentID: 1, CourseID: 10, TotalMissing: 1, FullName: "Zoe Park", TelegramID: 101},
		{StudentID: 2, CourseID: 10, TotalMissing: 4, FullName: "Bea Chan", TelegramID: 102},
		{StudentID: 3, CourseID: 10, TotalMissing: 4, FullName: "Ann Diaz", TelegramID: 103},
		{StudentID: 4, CourseID: 10, TotalMissing: 7, FullName: "Cal Ruiz", TelegramID: 104},
	}
	subRepo := newFakeSubmissionRepo()
	subRepo.missing[4] = []submission.MissingItem{{AssignmentID: 9, Title: "Essay 2"}}
	selector := NewTargetSelector(summaryRepo, subRepo)

	targets, err := selector.SelectTargets(context.Background(), 10, 2)
	require.NoError(t, err)

	require.Len(t, targets, 3, "the one-missing student is below the threshold")
	assert.Equal(t, int64(4), targets[0].StudentID, "most missing first")
	assert.Equal(t, int64(3), targets[1].StudentID, "name breaks the tie")
	assert.Equal(t, int64(2), targets[2].StudentID)
	assert.Equal(t, []string{"Essay 2"}, targets[0].MissingTitles)
	assert.Equal(t, "Cal", targets[0].FirstName)
}

func TestSelectTargets_AllCoursesSumsPerStudent(t *testing.T) {
	summaryRepo := newFakeSummaryRepo()
	summaryRepo.candidates = []summary.TargetCandidate{
		{StudentID: 1, CourseID: 10, TotalMissing: 2, FullName: "Ann Diaz", TelegramID: 101},
		{StudentID: 1, CourseID: 20, TotalMissing: 3, FullName: "Ann Diaz", TelegramID: 101},
		{StudentID: 2, CourseID: 10, TotalMissing: 2, FullName: "Bea Chan", TelegramID: 102},
	}
	selector := NewTargetSelector(summaryRepo, newFakeSubmissionRepo())

	targets, err := selector.SelectTargets(context.Background(), 0, 4)
	require.NoError(t, err)

	require.Len(t, targets, 1)
	assert.Equal(t, int64(1), targets[0].StudentID)
	assert.Equal(t, 5, targets[0].MissingCount, "missing counts sum across courses")
}

func TestSelectTargets_EmptyWhenNoCandidates(t *testing.T) {
	selector := NewTargetSelector(newFakeSummaryRepo(), newFakeSubmissionRepo())

	targets, err := selector.SelectTargets(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestSelectTargets_ThresholdFloorsAtOne(t *testing.T) {
	summaryRepo := newFakeSummaryRepo()
	summaryRepo.candidates = []summary.TargetCandidate{
		{StudentID: 1, CourseID: 10, TotalMissing: 0, FullName: "Ann Diaz", TelegramID: 101},
		{StudentID: 2, CourseID: 10, TotalMissing: 1, FullName: "Bea Chan", TelegramID: 102},
	}
	selector := NewTargetSelector(summaryRepo, newFakeSubmissionRepo())

	targets, err := selector.SelectTargets(context.Background(), 10, 0)
	require.NoError(t, err)

	require.Len(t, targets, 1, "a zero threshold must not target students with nothing missing")
	assert.Equal(t, int64(2), targets[0].StudentID)
}
