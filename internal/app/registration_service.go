package app

import (
	"context"
	"fmt"

	"assignment_tracker_bot/internal/domain/student"
	idb "assignment_tracker_bot/internal/infra/database"
	"assignment_tracker_bot/internal/infra/logger"
)

// Custom application-level errors for registration
var ErrAlreadyRegistered = fmt.Errorf("this chat is already linked to a student")
var ErrUnknownLMSID = fmt.Errorf("no student with this LMS ID, or it is already claimed")

// RegistrationService links and unlinks Telegram chat identities to
// imported student records. Students self-register with the LMS ID they
// received from the teacher, typically via a /start deep link.
type RegistrationService struct {
	studentRepo student.Repository
}

func NewRegistrationService(sr student.Repository) *RegistrationService {
	return &RegistrationService{studentRepo: sr}
}

// Register claims the student record with the given LMS ID for this
// chat. A chat can hold at most one student and a student at most one
// chat.
func (s *RegistrationService) Register(ctx context.Context, telegramID int64, username, lmsID string) (*student.Student, error) {
	existing, err := s.studentRepo.GetByTelegramID(ctx, telegramID)
	if err == nil {
		logger.Log.Debugf("Registration attempt from already-linked chat %d (student %d)", telegramID, existing.ID)
		return existing, ErrAlreadyRegistered
	}
	if err != idb.ErrStudentNotFound {
		return nil, fmt.Errorf("failed to check existing registration: %w", err)
	}

	err = s.studentRepo.LinkTelegram(ctx, lmsID, telegramID, username)
	if err != nil {
		if err == idb.ErrStudentNotLinkable || err == idb.ErrDuplicateTelegramID {
			return nil, ErrUnknownLMSID
		}
		return nil, fmt.Errorf("failed to link student: %w", err)
	}

	linked, err := s.studentRepo.GetByLMSID(ctx, lmsID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student after linking: %w", err)
	}
	logger.Log.Infof("Student %d (%s) linked to chat %d", linked.ID, linked.FullName, telegramID)
	return linked, nil
}

// Unregister detaches the student linked to this chat, if any.
func (s *RegistrationService) Unregister(ctx context.Context, telegramID int64) error {
	if err := s.studentRepo.UnlinkTelegram(ctx, telegramID); err != nil {
		return err
	}
	logger.Log.Infof("Chat %d unlinked from its student record", telegramID)
	return nil
}

// Lookup resolves the student linked to a chat.
func (s *RegistrationService) Lookup(ctx context.Context, telegramID int64) (*student.Student, error) {
	return s.studentRepo.GetByTelegramID(ctx, telegramID)
}
