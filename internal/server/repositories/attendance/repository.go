// Package attendance declares the ledger repository: append-only check-in
// records guarded by a (session_id, student_id) uniqueness constraint.
package attendance

import (
	"context"

	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// Repository persists attendance records.
type Repository interface {
	// Create inserts rec. A duplicate (session, student) pair yields
	// common.ErrConflict and leaves the ledger unchanged.
	Create(ctx context.Context, rec *models.AttendanceRecord) error
	// Upsert inserts rec unless the pair already exists; created reports
	// whether a row was written.
	Upsert(ctx context.Context, rec *models.AttendanceRecord) (created bool, err error)
	// Delete removes record id of session sessionID, or returns common.ErrNotFound.
	Delete(ctx context.Context, sessionID, id string) error
	// DeleteByStudent removes the student's record for the session if any.
	DeleteByStudent(ctx context.Context, sessionID, studentID string) (deleted bool, err error)
	Exists(ctx context.Context, sessionID, studentID string) (bool, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	// ListBySession returns records joined with student identity, newest first.
	ListBySession(ctx context.Context, sessionID string) ([]*models.PresentEntry, error)
	StudentIDsBySession(ctx context.Context, sessionID string) ([]string, error)
	// ListByStudent returns a student's records, newest first. An empty
	// subjectID matches every subject.
	ListByStudent(ctx context.Context, studentID, subjectID string) ([]*models.AttendanceRecord, error)
	CountByStudentSubject(ctx context.Context, studentID, subjectID string) (int, error)
}
