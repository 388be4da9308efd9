// Package services contains server-side business logic: the session
// lifecycle, the attendance ledger, roster reconciliation and roster import.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/config"
	"github.com/dmitrijs2005/rollkeeper/internal/server/identity"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// CreateSessionRequest opens a session for one subject occurrence.
// DurationSec <= 0 selects the configured default.
type CreateSessionRequest struct {
	SubjectID   string `validate:"required"`
	BranchID    string `validate:"required"`
	Semester    int    `validate:"required,min=1"`
	DurationSec int
}

// CreatedSession is returned to the faculty member who opened a session.
type CreatedSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// SessionStatus is the public view of a session resolved by token.
type SessionStatus struct {
	Session     *models.Session
	Active      bool
	TotalMarked int
}

// DefaultQRSize is the side of generated QR images in pixels.
const DefaultQRSize = 256

// SessionService manages the open → closed session lifecycle. Expiry is
// evaluated lazily on read; nothing sweeps expired sessions.
type SessionService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	reconciler      *Reconciler
	defaultDuration time.Duration
	validate        *validator.Validate
	log             logging.Logger
	now             func() time.Time
}

// NewSessionService constructs a SessionService using repositories and server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, r *Reconciler, cfg *config.Config, log logging.Logger) *SessionService {
	d := cfg.DefaultSessionDuration
	if d <= 0 {
		d = common.DefaultSessionDurationSec * time.Second
	}
	return &SessionService{
		db:              db,
		repomanager:     m,
		reconciler:      r,
		defaultDuration: d,
		validate:        validator.New(),
		log:             log.With("module", "sessions"),
		now:             time.Now,
	}
}

// CreateSession opens a session owned by the calling faculty member.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok || !caller.IsFaculty() {
		return nil, fmt.Errorf("%w: only faculty can open sessions", common.ErrForbidden)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	duration := s.defaultDuration
	if req.DurationSec > 0 {
		duration = time.Duration(req.DurationSec) * time.Second
	}

	token, err := common.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		Token:     token,
		FacultyID: caller.UserID,
		SubjectID: req.SubjectID,
		BranchID:  req.BranchID,
		Semester:  req.Semester,
		ExpiresAt: now.Add(duration),
		CreatedAt: now,
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info(ctx, "session opened", "session_id", session.ID, "subject_id", session.SubjectID, "expires_at", session.ExpiresAt)
	return &CreatedSession{SessionID: session.ID, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// ResolveByToken returns a session with its live state and present count.
func (s *SessionService) ResolveByToken(ctx context.Context, token string) (*SessionStatus, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", common.ErrBadRequest)
	}
	session, err := s.repomanager.Sessions(s.db).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	total, err := s.repomanager.Attendance(s.db).CountBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{Session: session, Active: session.IsActive(s.now()), TotalMarked: total}, nil
}

// CloseSession closes a session once. The first close appends the session
// to the subject roster; a repeated close keeps the original closedAt and
// schedules a full rebuild.
func (s *SessionService) CloseSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if _, err := s.owned(ctx, sessionID); err != nil {
		return nil, err
	}

	session, closedNow, err := s.repomanager.Sessions(s.db).Close(ctx, sessionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}

	if closedNow {
		s.log.Info(ctx, "session closed", "session_id", session.ID, "subject_id", session.SubjectID)
		s.reconciler.Schedule(Job{Kind: JobIncremental, SubjectID: session.SubjectID, SessionID: session.ID})
	} else {
		s.log.Debug(ctx, "session already closed, rebuilding roster", "session_id", session.ID)
		s.reconciler.Schedule(Job{Kind: JobRebuild, SubjectID: session.SubjectID})
	}
	return session, nil
}

// SessionQR renders the session token as a PNG QR code.
func (s *SessionService) SessionQR(ctx context.Context, sessionID string, size int) ([]byte, error) {
	session, err := s.owned(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(session.Token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// owned loads a session the caller may manage: its owner or an admin.
func (s *SessionService) owned(ctx context.Context, sessionID string) (*models.Session, error) {
	return ownedSession(ctx, s.repomanager.Sessions(s.db), sessionID)
}

type sessionGetter interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

func ownedSession(ctx context.Context, repo sessionGetter, sessionID string) (*models.Session, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok || !caller.IsFaculty() {
		return nil, fmt.Errorf("%w: faculty only", common.ErrForbidden)
	}
	session, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", common.ErrNotFound, sessionID)
		}
		return nil, err
	}
	if !caller.IsAdmin() && session.FacultyID != caller.UserID {
		return nil, fmt.Errorf("%w: session belongs to another faculty member", common.ErrForbidden)
	}
	return session, nil
}
