package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

const sessionColumns = `id, token, faculty_id, subject_id, branch_id, semester, expires_at, closed_at, created_at`

// PostgresRepository implements session storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s        models.Session
		closedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Token, &s.FacultyID, &s.SubjectID, &s.BranchID, &s.Semester,
		&s.ExpiresAt, &closedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		s.ClosedAt = &t
	}
	return &s, nil
}

// Create inserts a session row.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO attendance_sessions (id, token, faculty_id, subject_id, branch_id, semester, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.Token, s.FacultyID, s.SubjectID, s.BranchID, s.Semester, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// GetByID returns a session by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id)
}

// GetByToken returns a session by its lookup token.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE token = $1`, token)
}

// Close performs the open → closed transition at most once. A session that
// is already closed is returned unchanged with closedNow == false.
func (r *PostgresRepository) Close(ctx context.Context, id string, at time.Time) (*models.Session, bool, error) {
	query := `
		UPDATE attendance_sessions SET closed_at = $2
		WHERE id = $1 AND closed_at IS NULL
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, at))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListClosedBySubject returns the subject's closed sessions in replay order.
func (r *PostgresRepository) ListClosedBySubject(ctx context.Context, subjectID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions
		WHERE subject_id = $1 AND closed_at IS NOT NULL
		ORDER BY closed_at ASC, created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountBySubject counts every session held for a subject.
func (r *PostgresRepository) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_sessions WHERE subject_id = $1`, subjectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
