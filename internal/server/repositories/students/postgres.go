package students

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// PostgresRepository reads students over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select students: %w", err)
	}
	defer rows.Close()

	var result []*models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.EnrollmentNo, &s.Name, &s.BranchID, &s.Semester); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByCohort returns students of one branch and semester.
func (r *PostgresRepository) ListByCohort(ctx context.Context, c models.Cohort) ([]*models.Student, error) {
	return r.list(ctx, `
		SELECT id, enrollment_no, name, branch_id, semester FROM students
		WHERE branch_id = $1 AND semester = $2
		ORDER BY enrollment_no ASC`, c.BranchID, c.Semester)
}

// GetByIDs fetches students by id.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	return r.list(ctx, `
		SELECT id, enrollment_no, name, branch_id, semester FROM students
		WHERE id IN (`+strings.Join(ph, ", ")+`)
		ORDER BY enrollment_no ASC`, args...)
}

// Save upserts a student by id.
func (r *PostgresRepository) Save(ctx context.Context, s *models.Student) error {
	query := `
		INSERT INTO students (id, enrollment_no, name, branch_id, semester)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			enrollment_no = EXCLUDED.enrollment_no,
			name = EXCLUDED.name,
			branch_id = EXCLUDED.branch_id,
			semester = EXCLUDED.semester
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.EnrollmentNo, s.Name, s.BranchID, s.Semester); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
