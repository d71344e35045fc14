package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/domain/summary"
)

// Recipient is one student selected for a campaign, with everything the
// template needs already resolved.
type Recipient struct {
	StudentID     int64
	ChatID        int64
	FullName      string
	FirstName     string
	MissingCount  int
	MissingTitles []string
}

// TargetSelector turns summary rows into a deterministic recipient list.
// Both the preview shown to the teacher and the actual send use this one
// code path, so what the teacher approves is what goes out.
type TargetSelector struct {
	summaryRepo    summary.Repository
	submissionRepo submission.Repository
}

func NewTargetSelector(sr summary.Repository, subr submission.Repository) *TargetSelector {
	return &TargetSelector{summaryRepo: sr, submissionRepo: subr}
}

// SelectTargets returns reachable students whose missing-work count in
// the scope meets the threshold, ordered by missing count descending and
// name ascending. courseID 0 widens the scope to all courses, summing a
// student's missing counts across them.
func (t *TargetSelector) SelectTargets(ctx context.Context, courseID int64, threshold int) ([]Recipient, error) {
	if threshold < 1 {
		threshold = 1
	}
	candidates, err := t.summaryRepo.ListTargetCandidates(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list target candidates: %w", err)
	}

	byStudent := make(map[int64]*Recipient)
	order := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		r, ok := byStudent[c.StudentID]
		if !ok {
			r = &Recipient{
				StudentID: c.StudentID,
				ChatID:    c.TelegramID,
				FullName:  c.FullName,
				FirstName: firstNameOf(c.FullName),
			}
			byStudent[c.StudentID] = r
			order = append(order, c.StudentID)
		}
		r.MissingCount += c.TotalMissing
	}

	selected := make([]Recipient, 0, len(order))
	for _, id := range order {
		r := byStudent[id]
		if r.MissingCount < threshold {
			continue
		}
		items, err := t.submissionRepo.ListMissing(ctx, r.StudentID, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to list missing work for student %d: %w", r.StudentID, err)
		}
		r.MissingTitles = make([]string, 0, len(items))
		for _, it := range items {
			r.MissingTitles = append(r.MissingTitles, it.Title)
		}
		selected = append(selected, *r)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].MissingCount != selected[j].MissingCount {
			return selected[i].MissingCount > selected[j].MissingCount
		}
		return selected[i].FullName < selected[j].FullName
	})
	return selected, nil
}

func firstNameOf(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "Student"
	}
	return fields[0]
}
