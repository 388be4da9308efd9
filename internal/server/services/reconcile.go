package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"golang.org/x/sync/errgroup"
)

// JobKind selects the reconciliation algorithm.
type JobKind int

const (
	// JobIncremental appends the column of one newly closed session.
	JobIncremental JobKind = iota
	// JobRebuild regenerates the subject's roster from the ledger.
	JobRebuild
)

func (k JobKind) String() string {
	if k == JobIncremental {
		return "incremental"
	}
	return "rebuild"
}

// Job is a unit of reconciliation work. SessionID is used by incremental
// jobs, SubjectID by rebuilds.
type Job struct {
	Kind      JobKind
	SubjectID string
	SessionID string
}

// defaultFanout bounds concurrent ledger reads during a rebuild.
const defaultFanout = 4

// Reconciler keeps each subject's master roster consistent with the ledger.
// All writes to one subject's artifact are serialized; different subjects
// are reconciled in parallel.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       roster.Store
	log         logging.Logger

	locks  *keyedMutex
	wg     sync.WaitGroup
	fanout int
}

// NewReconciler wires a reconciler to the artifact store.
func NewReconciler(db *sql.DB, m repomanager.RepositoryManager, store roster.Store, log logging.Logger) *Reconciler {
	return &Reconciler{
		db:          db,
		repomanager: m,
		store:       store,
		log:         log.With("module", "reconciler"),
		locks:       newKeyedMutex(),
		fanout:      defaultFanout,
	}
}

// Schedule runs job in the background. Failures are logged and never
// propagate to the action that triggered the job.
func (r *Reconciler) Schedule(job Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := context.Background()
		if err := r.Run(ctx, job); err != nil {
			r.log.Error(ctx, "roster reconciliation failed",
				"kind", job.Kind.String(), "subject_id", job.SubjectID, "session_id", job.SessionID, "error", err)
		}
	}()
}

// Wait blocks until every scheduled job has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Run executes job synchronously.
func (r *Reconciler) Run(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobIncremental:
		return r.Incremental(ctx, job.SessionID)
	case JobRebuild:
		return r.Rebuild(ctx, job.SubjectID)
	default:
		return fmt.Errorf("unknown job kind %d", job.Kind)
	}
}

// Incremental appends the column of a closed session to its subject's
// roster. It is a no-op when the column already exists, and falls back to
// a full rebuild whenever the stored columns are not exactly the subject's
// earlier closed sessions (missing artifact, missed closes, close order).
func (r *Reconciler) Incremental(ctx context.Context, sessionID string) error {
	session, err := r.repomanager.Sessions(r.db).GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !session.IsClosed() {
		return fmt.Errorf("%w: session %s is not closed", common.ErrBadRequest, sessionID)
	}

	unlock := r.locks.Lock(session.SubjectID)
	defer unlock()

	closed, err := r.repomanager.Sessions(r.db).ListClosedBySubject(ctx, session.SubjectID)
	if err != nil {
		return fmt.Errorf("list closed sessions: %w", err)
	}

	table, err := r.load(ctx, session.SubjectID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if len(closed) != 1 || closed[0].ID != sessionID {
			return r.rebuildLocked(ctx, session.SubjectID, closed)
		}
		table = nil
	case err != nil:
		r.log.Warn(ctx, "unreadable roster artifact, rebuilding", "subject_id", session.SubjectID, "error", err)
		return r.rebuildLocked(ctx, session.SubjectID, closed)
	}

	if table != nil {
		if table.HasColumn(sessionID) && columnsMatch(table, closed) {
			return nil
		}
		n := len(closed)
		if n == 0 || closed[n-1].ID != sessionID || !columnsMatch(table, closed[:n-1]) {
			return r.rebuildLocked(ctx, session.SubjectID, closed)
		}
	}

	cohort := models.Cohort{BranchID: session.BranchID, Semester: session.Semester}
	students, err := r.repomanager.Students(r.db).ListByCohort(ctx, cohort)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	if table == nil {
		table = roster.NewTable(session.SubjectID, cohort, students)
	} else {
		table.BranchID, table.Semester = cohort.BranchID, cohort.Semester
		table.EnsureStudents(students)
	}

	present, err := r.presentMembers(ctx, sessionID, index(students))
	if err != nil {
		return err
	}
	table.AppendSession(roster.ColumnFor(session), present)

	if err := r.save(ctx, table); err != nil {
		return err
	}
	r.log.Info(ctx, "roster column appended", "subject_id", session.SubjectID, "session_id", sessionID, "columns", len(table.Columns))
	return nil
}

// Rebuild regenerates a subject's roster from all closed sessions. With no
// closed sessions the artifact is removed.
func (r *Reconciler) Rebuild(ctx context.Context, subjectID string) error {
	unlock := r.locks.Lock(subjectID)
	defer unlock()

	closed, err := r.repomanager.Sessions(r.db).ListClosedBySubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("list closed sessions: %w", err)
	}
	return r.rebuildLocked(ctx, subjectID, closed)
}

func (r *Reconciler) rebuildLocked(ctx context.Context, subjectID string, closed []*models.Session) error {
	if len(closed) == 0 {
		if err := r.store.Delete(ctx, subjectID); err != nil {
			return fmt.Errorf("delete roster: %w", err)
		}
		r.log.Info(ctx, "roster removed, no closed sessions", "subject_id", subjectID)
		return nil
	}

	last := closed[len(closed)-1]
	cohort := models.Cohort{BranchID: last.BranchID, Semester: last.Semester}
	students, err := r.repomanager.Students(r.db).ListByCohort(ctx, cohort)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	known := index(students)

	ids := make([][]string, len(closed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for i, s := range closed {
		g.Go(func() error {
			got, err := r.repomanager.Attendance(r.db).StudentIDsBySession(gctx, s.ID)
			if err != nil {
				return fmt.Errorf("load attendance of %s: %w", s.ID, err)
			}
			ids[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var unknown []string
	for _, list := range ids {
		for _, id := range list {
			if _, ok := known[id]; !ok {
				unknown = append(unknown, id)
				known[id] = roster.Member{StudentID: id}
			}
		}
	}
	if err := r.resolve(ctx, unknown, known); err != nil {
		return err
	}

	history := make([]roster.SessionAttendance, len(closed))
	for i, s := range closed {
		members := make([]roster.Member, 0, len(ids[i]))
		for _, id := range ids[i] {
			members = append(members, known[id])
		}
		history[i] = roster.SessionAttendance{Column: roster.ColumnFor(s), Present: members}
	}

	table := roster.Rebuild(subjectID, cohort, students, history)
	if err := r.save(ctx, table); err != nil {
		return err
	}
	r.log.Info(ctx, "roster rebuilt", "subject_id", subjectID, "columns", len(table.Columns), "rows", len(table.Rows))
	return nil
}

// presentMembers returns the students marked in a session with their roster
// identity. Students outside known are looked up individually.
func (r *Reconciler) presentMembers(ctx context.Context, sessionID string, known map[string]roster.Member) ([]roster.Member, error) {
	ids, err := r.repomanager.Attendance(r.db).StudentIDsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load attendance of %s: %w", sessionID, err)
	}
	var unknown []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
			known[id] = roster.Member{StudentID: id}
		}
	}
	if err := r.resolve(ctx, unknown, known); err != nil {
		return nil, err
	}

	out := make([]roster.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, known[id])
	}
	return out, nil
}

func (r *Reconciler) resolve(ctx context.Context, ids []string, into map[string]roster.Member) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := r.repomanager.Students(r.db).GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve students: %w", err)
	}
	for _, s := range found {
		into[s.ID] = roster.MemberOf(s)
	}
	return nil
}

func index(students []*models.Student) map[string]roster.Member {
	m := make(map[string]roster.Member, len(students))
	for _, s := range students {
		m[s.ID] = roster.MemberOf(s)
	}
	return m
}

func columnsMatch(t *roster.Table, sessions []*models.Session) bool {
	if len(t.Columns) != len(sessions) {
		return false
	}
	for i, s := range sessions {
		if t.Columns[i].SessionID != s.ID {
			return false
		}
	}
	return true
}

func (r *Reconciler) load(ctx context.Context, subjectID string) (*roster.Table, error) {
	data, err := r.store.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return roster.Decode(data)
}

func (r *Reconciler) save(ctx context.Context, t *roster.Table) error {
	data, err := roster.Encode(t)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, t.SubjectID, data); err != nil {
		return fmt.Errorf("store roster: %w", err)
	}
	return nil
}

// Snapshot returns the subject's encoded roster artifact.
func (r *Reconciler) Snapshot(ctx context.Context, subjectID string) ([]byte, error) {
	data, err := r.store.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: no roster for subject %s", common.ErrNotFound, subjectID)
		}
		return nil, err
	}
	return data, nil
}

// ExportRoster renders the subject's roster as xlsx or csv.
func (r *Reconciler) ExportRoster(ctx context.Context, subjectID, format string) ([]byte, error) {
	if !roster.ValidFormat(format) {
		return nil, fmt.Errorf("%w: unknown format %q", common.ErrBadRequest, format)
	}
	data, err := r.Snapshot(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	t, err := roster.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}

	var buf bytes.Buffer
	if err := t.ToSheet().Write(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
