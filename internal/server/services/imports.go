package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/google/uuid"
)

// ImportRequest carries an edited session or roster sheet.
type ImportRequest struct {
	SessionID string
	FileName  string
	Data      []byte
}

// ImportResult counts the ledger operations an import produced.
type ImportResult struct {
	Created   int
	Deleted   int
	Unchanged int
	Skipped   int
}

// ImportService replays an offline-edited sheet into the ledger. It never
// writes the roster itself; closed sessions get a full rebuild afterwards.
type ImportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	reconciler  *Reconciler
	log         logging.Logger
	now         func() time.Time
}

// NewImportService constructs an ImportService.
func NewImportService(db *sql.DB, m repomanager.RepositoryManager, r *Reconciler, log logging.Logger) *ImportService {
	return &ImportService{
		db:          db,
		repomanager: m,
		reconciler:  r,
		log:         log.With("module", "import"),
		now:         time.Now,
	}
}

// ImportRoster applies the status column of an uploaded sheet to one
// session: present tokens insert missing records, other non-empty tokens
// delete existing ones, blanks and unknown enrollments are left alone.
func (s *ImportService) ImportRoster(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: file is required", common.ErrBadRequest)
	}
	session, err := ownedSession(ctx, s.repomanager.Sessions(s.db), req.SessionID)
	if err != nil {
		return nil, err
	}

	header, rows, err := roster.ReadGrid(req.FileName, req.Data)
	if err != nil {
		return nil, err
	}
	label := ""
	if session.IsClosed() {
		label = roster.ColumnFor(session).Label
	}
	marks, ok, err := roster.ExtractMarks(header, rows, label)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Info(ctx, "import has no status column, nothing applied", "session_id", session.ID, "file", req.FileName)
		return &ImportResult{}, nil
	}

	cohort := models.Cohort{BranchID: session.BranchID, Semester: session.Semester}
	students, err := s.repomanager.Students(s.db).ListByCohort(ctx, cohort)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	byEnrollment := make(map[string]*models.Student, len(students))
	for _, st := range students {
		byEnrollment[st.EnrollmentNo] = st
	}

	var res ImportResult
	apply := func(ctx context.Context, tx dbx.DBTX) error {
		res = ImportResult{}
		repo := s.repomanager.Attendance(tx)
		for _, m := range marks {
			st, found := byEnrollment[m.EnrollmentNo]
			if !found {
				res.Skipped++
				continue
			}
			switch {
			case m.Status == "":
				res.Unchanged++
			case roster.IsPresent(m.Status):
				created, err := repo.Upsert(ctx, &models.AttendanceRecord{
					ID:        uuid.NewString(),
					SessionID: session.ID,
					StudentID: st.ID,
					SubjectID: session.SubjectID,
					MarkedAt:  s.now(),
					Status:    models.StatusPresent,
				})
				if err != nil {
					return fmt.Errorf("line %d: %w", m.Line, err)
				}
				if created {
					res.Created++
				} else {
					res.Unchanged++
				}
			default:
				deleted, err := repo.DeleteByStudent(ctx, session.ID, st.ID)
				if err != nil {
					return fmt.Errorf("line %d: %w", m.Line, err)
				}
				if deleted {
					res.Deleted++
				} else {
					res.Unchanged++
				}
			}
		}
		return nil
	}

	if s.db != nil {
		err = dbx.WithTx(ctx, s.db, nil, apply)
	} else {
		err = apply(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	s.log.Info(ctx, "import applied", "session_id", session.ID,
		"created", res.Created, "deleted", res.Deleted, "unchanged", res.Unchanged, "skipped", res.Skipped)
	if session.IsClosed() {
		s.reconciler.Schedule(Job{Kind: JobRebuild, SubjectID: session.SubjectID})
	}
	return &res, nil
}
