package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/blob"
	"github.com/dmitrijs2005/rollkeeper/internal/server/config"
	"github.com/dmitrijs2005/rollkeeper/internal/server/identity"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	repos    *repomanager.MemoryRepositoryManager
	store    *roster.FileStore
	blobs    *blob.LocalStore
	rec      *Reconciler
	sessions *SessionService
	ledger   *LedgerService
	imports  *ImportService
	clock    *fakeClock
}

var cohort = models.Cohort{BranchID: "cse", Semester: 3}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()

	repos := repomanager.NewMemoryRepositoryManager()
	store, err := roster.NewFileStore(t.TempDir())
	require.NoError(t, err)
	blobs, err := blob.NewLocalStore(t.TempDir(), "selfies")
	require.NoError(t, err)

	log := logging.Nop{}
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	rec := NewReconciler(nil, repos, store, log)
	f := &fixture{
		t:        t,
		repos:    repos,
		store:    store,
		blobs:    blobs,
		rec:      rec,
		sessions: NewSessionService(nil, repos, rec, cfg, log),
		ledger:   NewLedgerService(nil, repos, rec, blobs, cfg, log),
		imports:  NewImportService(nil, repos, rec, log),
		clock:    clock,
	}
	f.sessions.now = clock.Now
	f.ledger.now = clock.Now
	f.imports.now = clock.Now
	t.Cleanup(rec.Wait)

	for _, s := range []*models.Student{
		{ID: "stu-1", EnrollmentNo: "E001", Name: "Abe", BranchID: "cse", Semester: 3},
		{ID: "stu-2", EnrollmentNo: "E002", Name: "Bea", BranchID: "cse", Semester: 3},
		{ID: "stu-3", EnrollmentNo: "E003", Name: "Cid", BranchID: "cse", Semester: 3},
		{ID: "stu-9", EnrollmentNo: "X009", Name: "Out", BranchID: "ece", Semester: 5},
	} {
		require.NoError(t, repos.Students(nil).Save(context.Background(), s))
	}
	return f
}

func as(userID, role string) context.Context {
	return identity.NewContext(context.Background(), identity.Identity{UserID: userID, Role: role})
}

func faculty() context.Context { return as("fac-1", common.RoleFaculty) }

// open creates a session for subject "math" owned by fac-1.
func (f *fixture) open(durationSec int) *CreatedSession {
	f.t.Helper()
	cs, err := f.sessions.CreateSession(faculty(), CreateSessionRequest{
		SubjectID: "math", BranchID: cohort.BranchID, Semester: cohort.Semester, DurationSec: durationSec,
	})
	require.NoError(f.t, err)
	return cs
}

func (f *fixture) mark(token, studentID string) (*MarkResult, error) {
	return f.ledger.MarkAttendance(context.Background(), MarkRequest{Token: token, StudentID: studentID})
}

func (f *fixture) close(sessionID string) *models.Session {
	f.t.Helper()
	s, err := f.sessions.CloseSession(faculty(), sessionID)
	require.NoError(f.t, err)
	f.rec.Wait()
	return s
}

func (f *fixture) table(subjectID string) *roster.Table {
	f.t.Helper()
	data, err := f.rec.Snapshot(context.Background(), subjectID)
	require.NoError(f.t, err)
	tb, err := roster.Decode(data)
	require.NoError(f.t, err)
	return tb
}

func (f *fixture) snapshot(subjectID string) []byte {
	f.t.Helper()
	data, err := f.rec.Snapshot(context.Background(), subjectID)
	require.NoError(f.t, err)
	return data
}
