package student

import (
	"database/sql"
	"strings"
	"time"
)

// Student represents one learner in the classroom. Students are created by
// the LMS import or by bot registration and are never hard-deleted; the
// Telegram identity is attached and detached by registration actions.
type Student struct {
	ID               int64
	LMSID            string
	FullName         string
	TelegramID       sql.NullInt64
	TelegramUsername sql.NullString
	CreatedAt        time.Time
}

// Reachable reports whether the student has a linked Telegram identity.
func (s *Student) Reachable() bool {
	return s.TelegramID.Valid
}

// FirstName returns the leading token of the full name, for message templates.
func (s *Student) FirstName() string {
	fields := strings.Fields(s.FullName)
	if len(fields) == 0 {
		return "Student"
	}
	return fields[0]
}
