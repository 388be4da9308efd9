// Package sessions declares the repository contract for attendance sessions
// and its PostgreSQL implementation.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// Repository stores sessions keyed by generated id.
type Repository interface {
	// Create inserts a new session. ID, Token and CreatedAt must be set.
	Create(ctx context.Context, s *models.Session) error
	// GetByID returns common.ErrNotFound when the session is absent.
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// GetByToken returns common.ErrNotFound when no session carries token.
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	// Close sets closed_at = at if the session is still open. It returns the
	// stored session and whether this call performed the transition.
	Close(ctx context.Context, id string, at time.Time) (*models.Session, bool, error)
	// ListClosedBySubject returns closed sessions of a subject ordered by
	// (closed_at, created_at, id) ascending.
	ListClosedBySubject(ctx context.Context, subjectID string) ([]*models.Session, error)
	// CountBySubject counts all sessions of a subject, open or closed.
	CountBySubject(ctx context.Context, subjectID string) (int, error)
}
