package app

import (
	"context"
	"testing"

	"assignment_tracker_bot/internal/domain/student"
	idb "assignment_tracker_bot/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStudent(t *testing.T, repo *fakeStudentRepo, lmsID, name string) *student.Student {
	t.Helper()
	s := &student.Student{LMSID: lmsID, FullName: name}
	require.NoError(t, repo.Upsert(context.Background(), s))
	return s
}

func TestRegistration_RegisterLinksStudent(t *testing.T) {
	repo := newFakeStudentRepo()
	seedStudent(t, repo, "stu-42", "Ada Lovelace")
	svc := NewRegistrationService(repo)

	linked, err := svc.Register(context.Background(), 555, "ada", "stu-42")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", linked.FullName)
	assert.True(t, linked.Reachable())

	found, err := svc.Lookup(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, linked.ID, found.ID)
}

func TestRegistration_ChatCanHoldOnlyOneStudent(t *testing.T) {
	repo := newFakeStudentRepo()
	seedStudent(t, repo, "stu-1", "Ada Lovelace")
	seedStudent(t, repo, "stu-2", "Bea Chan")
	svc := NewRegistrationService(repo)

	_, err := svc.Register(context.Background(), 555, "ada", "stu-1")
	require.NoError(t, err)

	existing, err := svc.Register(context.Background(), 555, "ada", "stu-2")
	assert.Equal(t, ErrAlreadyRegistered, err)
	require.NotNil(t, existing)
	assert.Equal(t, "Ada Lovelace", existing.FullName)
}

func TestRegistration_ClaimedOrUnknownLMSIDRejected(t *testing.T) {
	repo := newFakeStudentRepo()
	seedStudent(t, repo, "stu-1", "Ada Lovelace")
	svc := NewRegistrationService(repo)

	_, err := svc.Register(context.Background(), 555, "ada", "stu-1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), 777, "eve", "stu-1")
	assert.Equal(t, ErrUnknownLMSID, err, "a claimed record cannot be claimed again")

	_, err = svc.Register(context.Background(), 777, "eve", "stu-404")
	assert.Equal(t, ErrUnknownLMSID, err)
}

func TestRegistration_UnregisterFreesTheRecord(t *testing.T) {
	repo := newFakeStudentRepo()
	seedStudent(t, repo, "stu-1", "Ada Lovelace")
	svc := NewRegistrationService(repo)

	_, err := svc.Register(context.Background(), 555, "ada", "stu-1")
	require.NoError(t, err)
	require.NoError(t, svc.Unregister(context.Background(), 555))

	_, err = svc.Lookup(context.Background(), 555)
	assert.Equal(t, idb.ErrStudentNotFound, err)

	// The record can be claimed again, by a different chat too.
	_, err = svc.Register(context.Background(), 777, "ada2", "stu-1")
	assert.NoError(t, err)
}

func TestRegistration_UnregisterUnlinkedChat(t *testing.T) {
	svc := NewRegistrationService(newFakeStudentRepo())
	err := svc.Unregister(context.Background(), 555)
	assert.Equal(t, idb.ErrStudentNotFound, err)
}
