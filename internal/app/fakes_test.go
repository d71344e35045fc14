package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assignment_tracker_bot/internal/domain/campaign"
	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/student"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/domain/summary"
	"assignment_tracker_bot/internal/domain/synclog"
	idb "assignment_tracker_bot/internal/infra/database"
)

// In-memory fakes for the repository interfaces. The campaign fake
// guards state with a mutex so claim-race tests can hammer it from
// multiple goroutines.

type fakeSummaryRepo struct {
	mu            sync.Mutex
	stale         []summary.Pair
	summaries     map[summary.Pair]*summary.CourseSummary
	candidates    []summary.TargetCandidate
	atRisk        []summary.AtRiskRow
	rebuilds      []summary.Pair
	rebuildErr    error
	candidatesErr error
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[summary.Pair]*summary.CourseSummary)}
}

func (f *fakeSummaryRepo) Rebuild(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rebuildErr != nil {
		return nil, f.rebuildErr
	}
	p := summary.Pair{StudentID: studentID, CourseID: courseID}
	f.rebuilds = append(f.rebuilds, p)
	remaining := f.stale[:0]
	for _, sp := range f.stale {
		if sp != p {
			remaining = append(remaining, sp)
		}
	}
	f.stale = remaining
	s, ok := f.summaries[p]
	if !ok {
		s = &summary.CourseSummary{StudentID: studentID, CourseID: courseID}
		f.summaries[p] = s
	}
	s.IsStale = false
	return s, nil
}

func (f *fakeSummaryRepo) Get(ctx context.Context, studentID, courseID int64) (*summary.CourseSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[summary.Pair{StudentID: studentID, CourseID: courseID}]
	if !ok {
		return nil, fmt.Errorf("summary not found")
	}
	return s, nil
}

func (f *fakeSummaryRepo) ListStalePairs(ctx context.Context, courseID int64, limit int) ([]summary.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]summary.Pair, 0)
	for _, p := range f.stale {
		if courseID != 0 && p.CourseID != courseID {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSummaryRepo) ListTargetCandidates(ctx context.Context, courseID int64) ([]summary.TargetCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	out := make([]summary.TargetCandidate, 0)
	for _, c := range f.candidates {
		if courseID != 0 && c.CourseID != courseID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSummaryRepo) ListAtRisk(ctx context.Context, threshold int) ([]summary.AtRiskRow, error) {
	out := make([]summary.AtRiskRow, 0)
	for _, r := range f.atRisk {
		if r.TotalMissing >= threshold {
			out = append(out, r)
		}
	}
	return out, nil
}

type factKey struct {
	studentID    int64
	assignmentID int64
}

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	missing map[int64][]submission.MissingItem
	facts   map[factKey]*submission.Fact
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		missing: make(map[int64][]submission.MissingItem),
		facts:   make(map[factKey]*submission.Fact),
	}
}

func (f *fakeSubmissionRepo) Upsert(ctx context.Context, fact *submission.Fact) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := factKey{fact.StudentID, fact.AssignmentID}
	_, exists := f.facts[k]
	f.facts[k] = fact
	return !exists, nil
}

func (f *fakeSubmissionRepo) Get(ctx context.Context, studentID, assignmentID int64) (*submission.Fact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fact, ok := f.facts[factKey{studentID, assignmentID}]
	if !ok {
		return nil, fmt.Errorf("submission not found")
	}
	return fact, nil
}

func (f *fakeSubmissionRepo) ListMissing(ctx context.Context, studentID, courseID int64) ([]submission.MissingItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing[studentID], nil
}

func (f *fakeSubmissionRepo) ListGrades(ctx context.Context, studentID, courseID int64, limit int) ([]submission.GradeItem, error) {
	return nil, nil
}

func (f *fakeSubmissionRepo) Flag(ctx context.Context, studentID, assignmentID int64, note string) error {
	return nil
}

func (f *fakeSubmissionRepo) AttachProof(ctx context.Context, studentID, assignmentID int64, fileID, fileType, caption string) error {
	return nil
}

func (f *fakeSubmissionRepo) VerifyFlag(ctx context.Context, studentID, assignmentID int64, approved bool, verifier string) error {
	return nil
}

func (f *fakeSubmissionRepo) ListPendingFlags(ctx context.Context) ([]submission.PendingFlag, error) {
	return nil, nil
}

type fakeCampaignRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*campaign.Job
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{jobs: make(map[int64]*campaign.Job)}
}

func (f *fakeCampaignRepo) Create(ctx context.Context, j *campaign.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	j.ID = f.nextID
	j.Status = campaign.StatusPending
	j.CreatedAt = time.Now()
	copied := *j
	f.jobs[j.ID] = &copied
	return nil
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, id int64) (*campaign.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("campaign job not found")
	}
	copied := *j
	return &copied, nil
}

func (f *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time) ([]*campaign.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*campaign.Job, 0)
	for _, j := range f.jobs {
		if j.Due(now) {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != campaign.StatusPending {
		return false, nil
	}
	j.Status = campaign.StatusRunning
	j.StartedAt.Time, j.StartedAt.Valid = now, true
	return true, nil
}

func (f *fakeCampaignRepo) Complete(ctx context.Context, id int64, targetCount, sentCount int, firstErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != campaign.StatusRunning {
		return fmt.Errorf("campaign job not running")
	}
	j.Status = campaign.StatusCompleted
	j.TargetCount = targetCount
	j.SentCount = sentCount
	if firstErr != "" {
		j.Error.String, j.Error.Valid = firstErr, true
	}
	j.FinishedAt.Time, j.FinishedAt.Valid = time.Now(), true
	return nil
}

func (f *fakeCampaignRepo) Fail(ctx context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != campaign.StatusRunning {
		return fmt.Errorf("campaign job not running")
	}
	j.Status = campaign.StatusFailed
	j.Error.String, j.Error.Valid = errMsg, true
	j.FinishedAt.Time, j.FinishedAt.Valid = time.Now(), true
	return nil
}

func (f *fakeCampaignRepo) ListRecent(ctx context.Context, limit int) ([]*campaign.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*campaign.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		copied := *j
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeCampaignRepo) FailAbandoned(ctx context.Context, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.jobs {
		if j.Status == campaign.StatusRunning {
			j.Status = campaign.StatusFailed
			j.Error.String, j.Error.Valid = reason, true
			n++
		}
	}
	return n, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[int64]error)}
}

func (f *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeStudentRepo struct {
	nextID      int64
	byLMSID     map[string]*student.Student
	enrollments map[[2]int64]bool
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{
		byLMSID:     make(map[string]*student.Student),
		enrollments: make(map[[2]int64]bool),
	}
}

func (f *fakeStudentRepo) Upsert(ctx context.Context, s *student.Student) error {
	if existing, ok := f.byLMSID[s.LMSID]; ok {
		existing.FullName = s.FullName
		s.ID = existing.ID
		return nil
	}
	f.nextID++
	s.ID = f.nextID
	copied := *s
	f.byLMSID[s.LMSID] = &copied
	return nil
}

func (f *fakeStudentRepo) GetByID(ctx context.Context, id int64) (*student.Student, error) {
	for _, s := range f.byLMSID {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, idb.ErrStudentNotFound
}

func (f *fakeStudentRepo) GetByLMSID(ctx context.Context, lmsID string) (*student.Student, error) {
	s, ok := f.byLMSID[lmsID]
	if !ok {
		return nil, idb.ErrStudentNotFound
	}
	return s, nil
}

func (f *fakeStudentRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*student.Student, error) {
	for _, s := range f.byLMSID {
		if s.TelegramID.Valid && s.TelegramID.Int64 == telegramID {
			return s, nil
		}
	}
	return nil, idb.ErrStudentNotFound
}

func (f *fakeStudentRepo) SearchByName(ctx context.Context, query string) ([]*student.Student, error) {
	return nil, nil
}

func (f *fakeStudentRepo) LinkTelegram(ctx context.Context, lmsID string, telegramID int64, username string) error {
	s, ok := f.byLMSID[lmsID]
	if !ok || s.TelegramID.Valid {
		return idb.ErrStudentNotLinkable
	}
	s.TelegramID.Int64, s.TelegramID.Valid = telegramID, true
	return nil
}

func (f *fakeStudentRepo) UnlinkTelegram(ctx context.Context, telegramID int64) error {
	for _, s := range f.byLMSID {
		if s.TelegramID.Valid && s.TelegramID.Int64 == telegramID {
			s.TelegramID.Valid = false
			return nil
		}
	}
	return idb.ErrStudentNotFound
}

func (f *fakeStudentRepo) Enroll(ctx context.Context, studentID, courseID int64) error {
	f.enrollments[[2]int64{studentID, courseID}] = true
	return nil
}

func (f *fakeStudentRepo) ListAll(ctx context.Context) ([]*student.Student, error) {
	return nil, nil
}

type fakeCourseRepo struct {
	nextID      int64
	courses     map[string]*course.Course
	assignments map[string]*course.Assignment
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		courses:     make(map[string]*course.Course),
		assignments: make(map[string]*course.Assignment),
	}
}

func (f *fakeCourseRepo) UpsertCourse(ctx context.Context, c *course.Course) error {
	if existing, ok := f.courses[c.LMSID]; ok {
		existing.Name = c.Name
		c.ID = existing.ID
		return nil
	}
	f.nextID++
	c.ID = f.nextID
	copied := *c
	f.courses[c.LMSID] = &copied
	return nil
}

func (f *fakeCourseRepo) GetCourse(ctx context.Context, id int64) (*course.Course, error) {
	for _, c := range f.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("course not found")
}

func (f *fakeCourseRepo) GetCourseByLMSID(ctx context.Context, lmsID string) (*course.Course, error) {
	c, ok := f.courses[lmsID]
	if !ok {
		return nil, fmt.Errorf("course not found")
	}
	return c, nil
}

func (f *fakeCourseRepo) ListCourses(ctx context.Context) ([]*course.Course, error) {
	return nil, nil
}

func (f *fakeCourseRepo) ListEnrolledCourses(ctx context.Context, studentID int64) ([]*course.Course, error) {
	return nil, nil
}

func (f *fakeCourseRepo) UpsertAssignment(ctx context.Context, a *course.Assignment) error {
	if existing, ok := f.assignments[a.LMSID]; ok {
		existing.Title = a.Title
		a.ID = existing.ID
		return nil
	}
	f.nextID++
	a.ID = f.nextID
	copied := *a
	f.assignments[a.LMSID] = &copied
	return nil
}

func (f *fakeCourseRepo) GetAssignment(ctx context.Context, id int64) (*course.Assignment, error) {
	for _, a := range f.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("assignment not found")
}

func (f *fakeCourseRepo) ListActiveAssignments(ctx context.Context, courseID int64) ([]*course.Assignment, error) {
	return nil, nil
}

func (f *fakeCourseRepo) RetireAssignment(ctx context.Context, id int64) error {
	return nil
}

type fakeSyncLogRepo struct {
	entries []*synclog.Entry
}

func (f *fakeSyncLogRepo) Append(ctx context.Context, e *synclog.Entry) error {
	copied := *e
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeSyncLogRepo) ListRecent(ctx context.Context, limit int) ([]*synclog.Entry, error) {
	return f.entries, nil
}
