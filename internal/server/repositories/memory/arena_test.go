package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/students"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ sessions.Repository   = (*SessionRepository)(nil)
	_ attendance.Repository = (*AttendanceRepository)(nil)
	_ students.Repository   = (*StudentRepository)(nil)
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, a *Arena, id, subject string) {
	t.Helper()
	require.NoError(t, a.Sessions().Create(context.Background(), &models.Session{
		ID: id, Token: "tok-" + id, SubjectID: subject, BranchID: "cse", Semester: 3,
		ExpiresAt: t0.Add(5 * time.Minute), CreatedAt: t0,
	}))
}

func TestSessions_CloseOnce(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	seedSession(t, a, "s1", "math")

	s, closedNow, err := a.Sessions().Close(ctx, "s1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, closedNow)
	assert.True(t, s.ClosedAt.Equal(t0.Add(time.Minute)))

	s, closedNow, err = a.Sessions().Close(ctx, "s1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closedNow)
	assert.True(t, s.ClosedAt.Equal(t0.Add(time.Minute)))

	_, _, err = a.Sessions().Close(ctx, "missing", t0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSessions_ReturnedCopiesAreDetached(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	seedSession(t, a, "s1", "math")

	s, err := a.Sessions().GetByToken(ctx, "tok-s1")
	require.NoError(t, err)
	s.SubjectID = "mutated"

	again, err := a.Sessions().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "math", again.SubjectID)
}

func TestSessions_ListClosedOrder(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	for _, id := range []string{"c", "b", "a", "open"} {
		seedSession(t, a, id, "math")
	}
	seedSession(t, a, "other", "physics")

	_, _, _ = a.Sessions().Close(ctx, "c", t0.Add(time.Minute))
	_, _, _ = a.Sessions().Close(ctx, "b", t0.Add(2*time.Minute))
	_, _, _ = a.Sessions().Close(ctx, "a", t0.Add(2*time.Minute))
	_, _, _ = a.Sessions().Close(ctx, "other", t0)

	list, err := a.Sessions().ListClosedBySubject(ctx, "math")
	require.NoError(t, err)
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	n, err := a.Sessions().CountBySubject(ctx, "math")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAttendance_Uniqueness(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	seedSession(t, a, "s1", "math")
	repo := a.Attendance()

	rec := &models.AttendanceRecord{ID: "r1", SessionID: "s1", StudentID: "stu-1", SubjectID: "math", MarkedAt: t0}
	require.NoError(t, repo.Create(ctx, rec))

	dup := *rec
	dup.ID = "r2"
	assert.ErrorIs(t, repo.Create(ctx, &dup), common.ErrConflict)

	created, err := repo.Upsert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	n, _ := repo.CountBySession(ctx, "s1")
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, repo.Create(ctx, &models.AttendanceRecord{ID: "r3", SessionID: "nope", StudentID: "x"}), common.ErrNotFound)
}

func TestAttendance_DeleteAndIndexes(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	seedSession(t, a, "s1", "math")
	seedSession(t, a, "s2", "math")
	repo := a.Attendance()
	require.NoError(t, a.Students().Save(ctx, &models.Student{ID: "stu-1", EnrollmentNo: "E001", Name: "Abe", BranchID: "cse", Semester: 3}))

	require.NoError(t, repo.Create(ctx, &models.AttendanceRecord{ID: "r1", SessionID: "s1", StudentID: "stu-1", SubjectID: "math", MarkedAt: t0}))
	require.NoError(t, repo.Create(ctx, &models.AttendanceRecord{ID: "r2", SessionID: "s1", StudentID: "stu-2", SubjectID: "math", MarkedAt: t0.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &models.AttendanceRecord{ID: "r3", SessionID: "s2", StudentID: "stu-1", SubjectID: "math", MarkedAt: t0.Add(time.Hour)}))

	present, err := repo.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, present, 2)
	assert.Equal(t, "r2", present[0].ID)
	assert.Equal(t, "E001", present[1].EnrollmentNo)

	assert.ErrorIs(t, repo.Delete(ctx, "s2", "r1"), common.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "s1", "r1"))
	ok, _ := repo.Exists(ctx, "s1", "stu-1")
	assert.False(t, ok)

	// The freed pair can be marked again.
	require.NoError(t, repo.Create(ctx, &models.AttendanceRecord{ID: "r4", SessionID: "s1", StudentID: "stu-1", SubjectID: "math", MarkedAt: t0}))

	deleted, err := repo.DeleteByStudent(ctx, "s1", "stu-2")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, _ = repo.DeleteByStudent(ctx, "s1", "stu-2")
	assert.False(t, deleted)

	ids, _ := repo.StudentIDsBySession(ctx, "s1")
	assert.Equal(t, []string{"stu-1"}, ids)

	mine, _ := repo.ListByStudent(ctx, "stu-1", "")
	require.Len(t, mine, 2)
	assert.Equal(t, "r3", mine[0].ID)

	n, _ := repo.CountByStudentSubject(ctx, "stu-1", "math")
	assert.Equal(t, 2, n)
}

func TestStudents(t *testing.T) {
	a := NewArena()
	ctx := context.Background()
	repo := a.Students()
	c := models.Cohort{BranchID: "cse", Semester: 3}

	require.NoError(t, repo.Save(ctx, &models.Student{ID: "b", EnrollmentNo: "E002", BranchID: "cse", Semester: 3}))
	require.NoError(t, repo.Save(ctx, &models.Student{ID: "a", EnrollmentNo: "E001", BranchID: "cse", Semester: 3}))
	require.NoError(t, repo.Save(ctx, &models.Student{ID: "z", EnrollmentNo: "E900", BranchID: "ece", Semester: 3}))
	assert.ErrorIs(t, repo.Save(ctx, &models.Student{ID: "dup", EnrollmentNo: "E001"}), common.ErrConflict)

	list, err := repo.ListByCohort(ctx, c)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "E001", list[0].EnrollmentNo)

	got, err := repo.GetByIDs(ctx, []string{"z", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}
