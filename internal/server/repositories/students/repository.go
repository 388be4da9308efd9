// Package students is the read side of the student roster provider.
package students

import (
	"context"

	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// Repository resolves students of a cohort.
type Repository interface {
	// ListByCohort returns the cohort's students sorted by enrollment number.
	ListByCohort(ctx context.Context, c models.Cohort) ([]*models.Student, error)
	// GetByIDs returns the known students among ids. Unknown ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Student, error)
	// Save inserts or updates a student. Used by seeding and tests.
	Save(ctx context.Context, s *models.Student) error
}
