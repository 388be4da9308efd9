// Package memory is an arena-style in-memory backing for the session,
// attendance and student repositories. Records live in maps keyed by
// generated ids; secondary indexes are plain keyed maps kept in step under
// one mutex. It serves the "memory" DSN and service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

type pairKey struct {
	sessionID string
	studentID string
}

// Arena owns every in-memory record.
type Arena struct {
	mu sync.RWMutex

	sessions       map[string]*models.Session
	sessionByToken map[string]string

	records     map[string]*models.AttendanceRecord
	recordByKey map[pairKey]string

	students map[string]*models.Student
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		sessions:       make(map[string]*models.Session),
		sessionByToken: make(map[string]string),
		records:        make(map[string]*models.AttendanceRecord),
		recordByKey:    make(map[pairKey]string),
		students:       make(map[string]*models.Student),
	}
}

// Sessions returns the arena's session repository view.
func (a *Arena) Sessions() *SessionRepository { return &SessionRepository{a: a} }

// Attendance returns the arena's ledger view.
func (a *Arena) Attendance() *AttendanceRepository { return &AttendanceRepository{a: a} }

// Students returns the arena's student roster view.
func (a *Arena) Students() *StudentRepository { return &StudentRepository{a: a} }

func copySession(s *models.Session) *models.Session {
	c := *s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// SessionRepository implements sessions.Repository.
type SessionRepository struct{ a *Arena }

func (r *SessionRepository) Create(_ context.Context, s *models.Session) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	if _, ok := r.a.sessions[s.ID]; ok {
		return common.ErrConflict
	}
	if _, ok := r.a.sessionByToken[s.Token]; ok {
		return common.ErrConflict
	}
	r.a.sessions[s.ID] = copySession(s)
	r.a.sessionByToken[s.Token] = s.ID
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	s, ok := r.a.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copySession(s), nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	r.a.mu.RLock()
	id, ok := r.a.sessionByToken[token]
	r.a.mu.RUnlock()
	if !ok {
		return nil, common.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SessionRepository) Close(_ context.Context, id string, at time.Time) (*models.Session, bool, error) {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	s, ok := r.a.sessions[id]
	if !ok {
		return nil, false, common.ErrNotFound
	}
	if s.ClosedAt != nil {
		return copySession(s), false, nil
	}
	t := at
	s.ClosedAt = &t
	return copySession(s), true, nil
}

func (r *SessionRepository) ListClosedBySubject(_ context.Context, subjectID string) ([]*models.Session, error) {
	r.a.mu.RLock()
	var out []*models.Session
	for _, s := range r.a.sessions {
		if s.SubjectID == subjectID && s.ClosedAt != nil {
			out = append(out, copySession(s))
		}
	}
	r.a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ClosedAt.Equal(*b.ClosedAt) {
			return a.ClosedAt.Before(*b.ClosedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r *SessionRepository) CountBySubject(_ context.Context, subjectID string) (int, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	n := 0
	for _, s := range r.a.sessions {
		if s.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

// AttendanceRepository implements attendance.Repository.
type AttendanceRepository struct{ a *Arena }

func (r *AttendanceRepository) insert(rec *models.AttendanceRecord) bool {
	k := pairKey{rec.SessionID, rec.StudentID}
	if _, ok := r.a.recordByKey[k]; ok {
		return false
	}
	c := *rec
	r.a.records[rec.ID] = &c
	r.a.recordByKey[k] = rec.ID
	return true
}

func (r *AttendanceRepository) remove(id string) {
	rec, ok := r.a.records[id]
	if !ok {
		return
	}
	delete(r.a.recordByKey, pairKey{rec.SessionID, rec.StudentID})
	delete(r.a.records, id)
}

func (r *AttendanceRepository) Create(_ context.Context, rec *models.AttendanceRecord) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	if _, ok := r.a.sessions[rec.SessionID]; !ok {
		return common.ErrNotFound
	}
	if !r.insert(rec) {
		return common.ErrConflict
	}
	return nil
}

func (r *AttendanceRepository) Upsert(_ context.Context, rec *models.AttendanceRecord) (bool, error) {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	if _, ok := r.a.sessions[rec.SessionID]; !ok {
		return false, common.ErrNotFound
	}
	return r.insert(rec), nil
}

func (r *AttendanceRepository) Delete(_ context.Context, sessionID, id string) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	rec, ok := r.a.records[id]
	if !ok || rec.SessionID != sessionID {
		return common.ErrNotFound
	}
	r.remove(id)
	return nil
}

func (r *AttendanceRepository) DeleteByStudent(_ context.Context, sessionID, studentID string) (bool, error) {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	id, ok := r.a.recordByKey[pairKey{sessionID, studentID}]
	if !ok {
		return false, nil
	}
	r.remove(id)
	return true, nil
}

func (r *AttendanceRepository) Exists(_ context.Context, sessionID, studentID string) (bool, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	_, ok := r.a.recordByKey[pairKey{sessionID, studentID}]
	return ok, nil
}

func (r *AttendanceRepository) bySession(sessionID string) []*models.AttendanceRecord {
	var out []*models.AttendanceRecord
	for _, rec := range r.a.records {
		if rec.SessionID == sessionID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out
}

func (r *AttendanceRepository) CountBySession(_ context.Context, sessionID string) (int, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()
	return len(r.bySession(sessionID)), nil
}

func newestFirst(recs []*models.AttendanceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].MarkedAt.Equal(recs[j].MarkedAt) {
			return recs[i].MarkedAt.After(recs[j].MarkedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

func (r *AttendanceRepository) ListBySession(_ context.Context, sessionID string) ([]*models.PresentEntry, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	recs := r.bySession(sessionID)
	newestFirst(recs)
	out := make([]*models.PresentEntry, 0, len(recs))
	for _, rec := range recs {
		e := &models.PresentEntry{AttendanceRecord: *rec}
		if st, ok := r.a.students[rec.StudentID]; ok {
			e.EnrollmentNo = st.EnrollmentNo
			e.Name = st.Name
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *AttendanceRepository) StudentIDsBySession(_ context.Context, sessionID string) ([]string, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	var ids []string
	for _, rec := range r.bySession(sessionID) {
		ids = append(ids, rec.StudentID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *AttendanceRepository) ListByStudent(_ context.Context, studentID, subjectID string) ([]*models.AttendanceRecord, error) {
	r.a.mu.RLock()
	var out []*models.AttendanceRecord
	for _, rec := range r.a.records {
		if rec.StudentID == studentID && (subjectID == "" || rec.SubjectID == subjectID) {
			c := *rec
			out = append(out, &c)
		}
	}
	r.a.mu.RUnlock()

	newestFirst(out)
	return out, nil
}

func (r *AttendanceRepository) CountByStudentSubject(_ context.Context, studentID, subjectID string) (int, error) {
	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	n := 0
	for _, rec := range r.a.records {
		if rec.StudentID == studentID && rec.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

// StudentRepository implements students.Repository.
type StudentRepository struct{ a *Arena }

func byEnrollment(list []*models.Student) {
	sort.Slice(list, func(i, j int) bool { return list[i].EnrollmentNo < list[j].EnrollmentNo })
}

func (r *StudentRepository) ListByCohort(_ context.Context, c models.Cohort) ([]*models.Student, error) {
	r.a.mu.RLock()
	var out []*models.Student
	for _, s := range r.a.students {
		if s.BranchID == c.BranchID && s.Semester == c.Semester {
			cp := *s
			out = append(out, &cp)
		}
	}
	r.a.mu.RUnlock()

	byEnrollment(out)
	return out, nil
}

func (r *StudentRepository) GetByIDs(_ context.Context, ids []string) ([]*models.Student, error) {
	r.a.mu.RLock()
	var out []*models.Student
	for _, id := range ids {
		if s, ok := r.a.students[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	r.a.mu.RUnlock()

	byEnrollment(out)
	return out, nil
}

func (r *StudentRepository) Save(_ context.Context, s *models.Student) error {
	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	for id, other := range r.a.students {
		if id != s.ID && other.EnrollmentNo == s.EnrollmentNo {
			return common.ErrConflict
		}
	}
	cp := *s
	r.a.students[s.ID] = &cp
	return nil
}
