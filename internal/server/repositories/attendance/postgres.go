package attendance

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// PostgresRepository implements the ledger over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a record, mapping the uniqueness violation to common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	query := `
		INSERT INTO attendance (id, session_id, student_id, subject_id, selfie_ref, marked_at, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.StudentID, rec.SubjectID, rec.SelfieRef, rec.MarkedAt, rec.Status)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Upsert inserts a record and silently keeps an existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	query := `
		INSERT INTO attendance (id, session_id, student_id, subject_id, selfie_ref, marked_at, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.StudentID, rec.SubjectID, rec.SelfieRef, rec.MarkedAt, rec.Status)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Delete removes one record of a session.
func (r *PostgresRepository) Delete(ctx context.Context, sessionID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1 AND session_id = $2`, id, sessionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteByStudent removes the record of (sessionID, studentID).
func (r *PostgresRepository) DeleteByStudent(ctx context.Context, sessionID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE session_id = $1 AND student_id = $2`, sessionID, studentID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Exists reports whether the student is marked for the session.
func (r *PostgresRepository) Exists(ctx context.Context, sessionID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM attendance WHERE session_id = $1 AND student_id = $2)`,
		sessionID, studentID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// CountBySession returns the live present count.
func (r *PostgresRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListBySession returns the session's records with enrollment and name.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.PresentEntry, error) {
	query := `
		SELECT a.id, a.session_id, a.student_id, a.subject_id, COALESCE(a.selfie_ref, ''), a.marked_at, a.status,
		       COALESCE(s.enrollment_no, ''), COALESCE(s.name, '')
		FROM attendance a
		LEFT JOIN students s ON s.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY a.marked_at DESC, a.id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attendance: %w", err)
	}
	defer rows.Close()

	var result []*models.PresentEntry
	for rows.Next() {
		var e models.PresentEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StudentID, &e.SubjectID, &e.SelfieRef, &e.MarkedAt, &e.Status,
			&e.EnrollmentNo, &e.Name); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// StudentIDsBySession returns the ids of every student marked for the session.
func (r *PostgresRepository) StudentIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT student_id FROM attendance WHERE session_id = $1 ORDER BY student_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attendance: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByStudent returns the student's records, optionally for one subject.
func (r *PostgresRepository) ListByStudent(ctx context.Context, studentID, subjectID string) ([]*models.AttendanceRecord, error) {
	query := `
		SELECT id, session_id, student_id, subject_id, COALESCE(selfie_ref, ''), marked_at, status
		FROM attendance
		WHERE student_id = $1 AND ($2 = '' OR subject_id = $2)
		ORDER BY marked_at DESC, id
	`
	rows, err := r.db.QueryContext(ctx, query, studentID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attendance: %w", err)
	}
	defer rows.Close()

	var result []*models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.SubjectID, &rec.SelfieRef, &rec.MarkedAt, &rec.Status); err != nil {
			return nil, err
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountByStudentSubject counts a student's records for a subject.
func (r *PostgresRepository) CountByStudentSubject(ctx context.Context, studentID, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE student_id = $1 AND subject_id = $2`,
		studentID, subjectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
