package student

import "context"

// Repository defines the operations for persisting and retrieving Student entities.
type Repository interface {
	// Upsert inserts the student or refreshes the display name, keyed on LMSID.
	Upsert(ctx context.Context, s *Student) error
	GetByID(ctx context.Context, id int64) (*Student, error)
	GetByLMSID(ctx context.Context, lmsID string) (*Student, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Student, error)
	SearchByName(ctx context.Context, query string) ([]*Student, error)
	// LinkTelegram attaches a chat identity to an unlinked student.
	LinkTelegram(ctx context.Context, lmsID string, telegramID int64, username string) error
	UnlinkTelegram(ctx context.Context, telegramID int64) error
	Enroll(ctx context.Context, studentID, courseID int64) error
	ListAll(ctx context.Context) ([]*Student, error)
}
