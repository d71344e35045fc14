package course

import "context"

// Repository defines operations for Course and Assignment entities.
// Assignment write paths must mark the affected course summaries stale
// as part of the same transaction.
type Repository interface {
	UpsertCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id int64) (*Course, error)
	GetCourseByLMSID(ctx context.Context, lmsID string) (*Course, error)
	ListCourses(ctx context.Context) ([]*Course, error)
	ListEnrolledCourses(ctx context.Context, studentID int64) ([]*Course, error)

	UpsertAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id int64) (*Assignment, error)
	ListActiveAssignments(ctx context.Context, courseID int64) ([]*Assignment, error)
	// RetireAssignment clears the active flag without deleting the row.
	RetireAssignment(ctx context.Context, id int64) error
}
