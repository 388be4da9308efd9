package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/blob"
	"github.com/dmitrijs2005/rollkeeper/internal/server/config"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/google/uuid"
)

// MarkRequest is a student's check-in. Selfie holds raw image bytes; when
// empty, SelfieRef may carry a reference uploaded out of band.
type MarkRequest struct {
	Token     string
	StudentID string
	SelfieRef string
	Selfie    []byte
}

// MarkResult confirms a check-in.
type MarkResult struct {
	AttendanceID string
	MarkedAt     time.Time
	SelfieRef    string
	SelfieURL    string
}

// PresentItem is one row of the live monitoring list.
type PresentItem struct {
	*models.PresentEntry
	SelfieURL string
}

// Summary is a student's attendance in one subject.
type Summary struct {
	SubjectID     string
	TotalSessions int
	PresentCount  int
	Percentage    int
}

// LedgerService records check-ins. The (session, student) uniqueness
// constraint in storage is the only serialization between concurrent marks.
type LedgerService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	reconciler    *Reconciler
	blobs         blob.Store
	selfieMaxSide int
	log           logging.Logger
	now           func() time.Time
}

// NewLedgerService constructs a LedgerService. blobs may be nil, in which
// case selfie bytes are rejected.
func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, r *Reconciler, blobs blob.Store, cfg *config.Config, log logging.Logger) *LedgerService {
	return &LedgerService{
		db:            db,
		repomanager:   m,
		reconciler:    r,
		blobs:         blobs,
		selfieMaxSide: cfg.SelfieMaxSide,
		log:           log.With("module", "ledger"),
		now:           time.Now,
	}
}

// MarkAttendance appends a check-in for an active session. A second mark by
// the same student fails with common.ErrConflict and leaves the ledger as is.
func (s *LedgerService) MarkAttendance(ctx context.Context, req MarkRequest) (*MarkResult, error) {
	if req.StudentID == "" {
		return nil, fmt.Errorf("%w: student is required", common.ErrValidation)
	}
	if req.Token == "" {
		return nil, fmt.Errorf("%w: token is required", common.ErrBadRequest)
	}

	session, err := s.repomanager.Sessions(s.db).GetByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !session.IsActive(now) {
		return nil, fmt.Errorf("%w: session inactive", common.ErrForbidden)
	}

	selfieRef := req.SelfieRef
	uploaded := false
	if len(req.Selfie) > 0 {
		if s.blobs == nil {
			return nil, fmt.Errorf("%w: selfie uploads are disabled", common.ErrBadRequest)
		}
		img, err := blob.NormalizeSelfie(req.Selfie, s.selfieMaxSide)
		if err != nil {
			return nil, err
		}
		selfieRef, err = s.blobs.Save(ctx, img, ".jpg")
		if err != nil {
			return nil, fmt.Errorf("store selfie: %w", err)
		}
		uploaded = true
	}

	rec := &models.AttendanceRecord{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		StudentID: req.StudentID,
		SubjectID: session.SubjectID,
		SelfieRef: selfieRef,
		MarkedAt:  now,
		Status:    models.StatusPresent,
	}
	if err := s.repomanager.Attendance(s.db).Create(ctx, rec); err != nil {
		if uploaded {
			if derr := s.blobs.Delete(ctx, selfieRef); derr != nil {
				s.log.Warn(ctx, "orphaned selfie", "ref", selfieRef, "error", derr)
			}
		}
		if errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("%w: student %s in session %s", common.ErrConflict, req.StudentID, session.ID)
		}
		return nil, fmt.Errorf("mark attendance: %w", err)
	}

	s.log.Debug(ctx, "attendance marked", "session_id", session.ID, "student_id", req.StudentID)
	return &MarkResult{
		AttendanceID: rec.ID,
		MarkedAt:     rec.MarkedAt,
		SelfieRef:    selfieRef,
		SelfieURL:    s.selfieURL(ctx, selfieRef),
	}, nil
}

func (s *LedgerService) selfieURL(ctx context.Context, ref string) string {
	if ref == "" || s.blobs == nil {
		return ""
	}
	u, err := s.blobs.URL(ctx, ref)
	if err != nil {
		s.log.Warn(ctx, "selfie url unavailable", "ref", ref, "error", err)
		return ""
	}
	return u
}

// RemoveAttendance deletes one record. Removing from a closed session
// schedules a rebuild of the subject roster.
func (s *LedgerService) RemoveAttendance(ctx context.Context, sessionID, attendanceID string) error {
	session, err := ownedSession(ctx, s.repomanager.Sessions(s.db), sessionID)
	if err != nil {
		return err
	}
	if err := s.repomanager.Attendance(s.db).Delete(ctx, sessionID, attendanceID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: attendance %s", common.ErrNotFound, attendanceID)
		}
		return fmt.Errorf("remove attendance: %w", err)
	}

	s.log.Info(ctx, "attendance removed", "session_id", sessionID, "attendance_id", attendanceID)
	if session.IsClosed() {
		s.reconciler.Schedule(Job{Kind: JobRebuild, SubjectID: session.SubjectID})
	}
	return nil
}

// ListPresent returns the session's check-ins, newest first.
func (s *LedgerService) ListPresent(ctx context.Context, sessionID string) ([]*PresentItem, error) {
	if _, err := ownedSession(ctx, s.repomanager.Sessions(s.db), sessionID); err != nil {
		return nil, err
	}
	entries, err := s.repomanager.Attendance(s.db).ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*PresentItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, &PresentItem{PresentEntry: e, SelfieURL: s.selfieURL(ctx, e.SelfieRef)})
	}
	return out, nil
}

// MyAttendance returns a student's records, newest first. An empty
// subjectID lists every subject.
func (s *LedgerService) MyAttendance(ctx context.Context, studentID, subjectID string) ([]*models.AttendanceRecord, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student is required", common.ErrValidation)
	}
	return s.repomanager.Attendance(s.db).ListByStudent(ctx, studentID, subjectID)
}

// SubjectSummary counts a student's marks against every session held for
// the subject.
func (s *LedgerService) SubjectSummary(ctx context.Context, studentID, subjectID string) (*Summary, error) {
	if studentID == "" || subjectID == "" {
		return nil, fmt.Errorf("%w: student and subject are required", common.ErrBadRequest)
	}
	total, err := s.repomanager.Sessions(s.db).CountBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	present, err := s.repomanager.Attendance(s.db).CountByStudentSubject(ctx, studentID, subjectID)
	if err != nil {
		return nil, err
	}
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(present) * 100 / float64(total)))
	}
	return &Summary{SubjectID: subjectID, TotalSessions: total, PresentCount: present, Percentage: pct}, nil
}

// Session export columns. The Status column makes the sheet importable.
var sessionExportHeader = []string{roster.HeaderEnrollment, roster.HeaderName, "Status", "Marked At", "Selfie URL"}

// ExportSession renders one session's check-ins as xlsx or csv.
func (s *LedgerService) ExportSession(ctx context.Context, sessionID, format string) ([]byte, error) {
	if !roster.ValidFormat(format) {
		return nil, fmt.Errorf("%w: unknown format %q", common.ErrBadRequest, format)
	}
	items, err := s.ListPresent(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sheet := &roster.Sheet{Title: sessionID, Header: sessionExportHeader}
	for _, it := range items {
		sheet.Rows = append(sheet.Rows, []any{
			it.EnrollmentNo, it.Name, it.Status, it.MarkedAt.UTC().Format(time.RFC3339), it.SelfieURL,
		})
	}

	var buf bytes.Buffer
	if err := sheet.Write(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
