// Package roster holds the master roster model: a per-subject table whose
// columns are closed sessions and whose rows are students. The table is a
// pure fold over the attendance ledger; nothing here touches storage of
// sessions or records.
package roster

import (
	"sort"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
)

// SchemaID versions the encoded artifact.
const SchemaID = "rollkeeper.roster/v1"

// LabelLayout renders a column label from the session's close time.
const LabelLayout = "2006-01-02T15:04:05.000Z"

// Column is one closed session. Columns are append-only.
type Column struct {
	SessionID string    `json:"sessionId"`
	Label     string    `json:"label"`
	ClosedAt  time.Time `json:"closedAt"`
}

// Row is one student. Cells align with Table.Columns; 1 means present.
type Row struct {
	StudentID    string `json:"studentId"`
	EnrollmentNo string `json:"enrollmentNo"`
	Name         string `json:"name"`
	Cells        []int  `json:"cells"`
}

// Table is the master roster of one subject.
type Table struct {
	Schema    string   `json:"schema"`
	SubjectID string   `json:"subjectId"`
	BranchID  string   `json:"branchId"`
	Semester  int      `json:"semester"`
	Columns   []Column `json:"columns"`
	Rows      []Row    `json:"rows"`
}

// Member identifies a student placed on a row.
type Member struct {
	StudentID    string
	EnrollmentNo string
	Name         string
}

// MemberOf converts a roster provider student.
func MemberOf(s *models.Student) Member {
	return Member{StudentID: s.ID, EnrollmentNo: s.EnrollmentNo, Name: s.Name}
}

// SessionAttendance is the ledger content of one closed session.
type SessionAttendance struct {
	Column  Column
	Present []Member
}

// ColumnFor builds the column of a closed session. The close time is
// normalized to UTC microseconds so values read back from any store match.
func ColumnFor(s *models.Session) Column {
	var at time.Time
	if s.ClosedAt != nil {
		at = s.ClosedAt.UTC().Truncate(time.Microsecond)
	}
	return Column{SessionID: s.ID, Label: at.Format(LabelLayout), ClosedAt: at}
}

// NewTable starts an empty-column table whose rows are the cohort's students
// in ascending enrollment order.
func NewTable(subjectID string, c models.Cohort, students []*models.Student) *Table {
	t := &Table{
		Schema:    SchemaID,
		SubjectID: subjectID,
		BranchID:  c.BranchID,
		Semester:  c.Semester,
		Columns:   []Column{},
		Rows:      []Row{},
	}
	sorted := make([]Member, 0, len(students))
	for _, s := range students {
		sorted = append(sorted, MemberOf(s))
	}
	sortMembers(sorted)
	for _, m := range sorted {
		t.addRow(m)
	}
	return t
}

func sortMembers(ms []Member) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].EnrollmentNo != ms[j].EnrollmentNo {
			return ms[i].EnrollmentNo < ms[j].EnrollmentNo
		}
		return ms[i].StudentID < ms[j].StudentID
	})
}

func (t *Table) rowIndex() map[string]int {
	idx := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[r.StudentID] = i
	}
	return idx
}

// addRow appends a row with 0 in every existing column.
func (t *Table) addRow(m Member) {
	t.Rows = append(t.Rows, Row{
		StudentID:    m.StudentID,
		EnrollmentNo: m.EnrollmentNo,
		Name:         m.Name,
		Cells:        make([]int, len(t.Columns)),
	})
}

// HasColumn reports whether sessionID already has a column.
func (t *Table) HasColumn(sessionID string) bool {
	for _, c := range t.Columns {
		if c.SessionID == sessionID {
			return true
		}
	}
	return false
}

// ColumnIndex returns the position of sessionID's column, or -1.
func (t *Table) ColumnIndex(sessionID string) int {
	for i, c := range t.Columns {
		if c.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// EnsureStudents appends rows for students that are not on the table yet,
// in ascending enrollment order. It returns how many rows were added.
func (t *Table) EnsureStudents(students []*models.Student) int {
	idx := t.rowIndex()
	var missing []Member
	for _, s := range students {
		if _, ok := idx[s.ID]; !ok {
			missing = append(missing, MemberOf(s))
			idx[s.ID] = -1
		}
	}
	sortMembers(missing)
	for _, m := range missing {
		t.addRow(m)
	}
	return len(missing)
}

// AppendSession adds one column. A row's cell is 1 when the student is in
// present. Present students without a row get one, with 0 in earlier columns.
func (t *Table) AppendSession(col Column, present []Member) {
	idx := t.rowIndex()
	var extra []Member
	seen := make(map[string]bool, len(present))
	for _, m := range present {
		if seen[m.StudentID] {
			continue
		}
		seen[m.StudentID] = true
		if _, ok := idx[m.StudentID]; !ok {
			extra = append(extra, m)
		}
	}
	sortMembers(extra)
	for _, m := range extra {
		t.addRow(m)
	}

	t.Columns = append(t.Columns, col)
	for i := range t.Rows {
		v := 0
		if seen[t.Rows[i].StudentID] {
			v = 1
		}
		t.Rows[i].Cells = append(t.Rows[i].Cells, v)
	}
}

// Rebuild regenerates a table from scratch: rows from the current cohort,
// then one AppendSession per closed session in history order. The output
// depends only on its inputs.
func Rebuild(subjectID string, c models.Cohort, students []*models.Student, history []SessionAttendance) *Table {
	t := NewTable(subjectID, c, students)
	for _, h := range history {
		t.AppendSession(h.Column, h.Present)
	}
	return t
}

// Cell returns the value for (studentID, sessionID) and whether both exist.
func (t *Table) Cell(studentID, sessionID string) (int, bool) {
	ci := t.ColumnIndex(sessionID)
	if ci < 0 {
		return 0, false
	}
	for _, r := range t.Rows {
		if r.StudentID == studentID {
			return r.Cells[ci], true
		}
	}
	return 0, false
}
