package services

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAttendance_OncePerStudent(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)

	res, err := f.mark(cs.Token, "stu-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AttendanceID)
	assert.Equal(t, f.clock.Now(), res.MarkedAt)

	_, err = f.mark(cs.Token, "stu-1")
	assert.ErrorIs(t, err, common.ErrConflict)

	n, err := f.repos.Attendance(nil).CountBySession(context.Background(), cs.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkAttendance_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mark(cs.Token, "stu-2")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, common.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestMarkAttendance_Window(t *testing.T) {
	f := newFixture(t)

	short := f.open(1)
	f.clock.Advance(1500 * time.Millisecond)
	_, err := f.mark(short.Token, "stu-1")
	assert.ErrorIs(t, err, common.ErrForbidden, "expired sessions reject marks")

	closed := f.open(60)
	f.close(closed.SessionID)
	_, err = f.mark(closed.Token, "stu-1")
	assert.ErrorIs(t, err, common.ErrForbidden, "closed sessions reject marks")

	_, err = f.mark("unknown", "stu-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.mark("", "stu-1")
	assert.ErrorIs(t, err, common.ErrBadRequest)

	_, err = f.mark(closed.Token, "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func selfie(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(64, 48, color.NRGBA{G: 255, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	}))
	return n
}

func TestMarkAttendance_Selfie(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)
	ctx := context.Background()

	res, err := f.ledger.MarkAttendance(ctx, MarkRequest{Token: cs.Token, StudentID: "stu-1", Selfie: selfie(t)})
	require.NoError(t, err)
	require.NotEmpty(t, res.SelfieRef)
	assert.True(t, strings.HasSuffix(res.SelfieRef, ".jpg"))
	assert.True(t, strings.HasPrefix(res.SelfieURL, "file://"))

	stored, err := f.blobs.Open(ctx, res.SelfieRef)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	url, err := f.blobs.URL(ctx, res.SelfieRef)
	require.NoError(t, err)
	root := strings.TrimSuffix(strings.TrimPrefix(url, "file://"), res.SelfieRef)
	before := countFiles(t, root)

	_, err = f.ledger.MarkAttendance(ctx, MarkRequest{Token: cs.Token, StudentID: "stu-1", Selfie: selfie(t)})
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, before, countFiles(t, root), "selfie of a rejected mark is removed")

	_, err = f.ledger.MarkAttendance(ctx, MarkRequest{Token: cs.Token, StudentID: "stu-2", Selfie: []byte("junk")})
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestRemoveAttendance(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)
	a, err := f.mark(cs.Token, "stu-1")
	require.NoError(t, err)
	_, err = f.mark(cs.Token, "stu-2")
	require.NoError(t, err)
	f.close(cs.SessionID)

	v, _ := f.table("math").Cell("stu-1", cs.SessionID)
	assert.Equal(t, 1, v)

	assert.ErrorIs(t, f.ledger.RemoveAttendance(faculty(), cs.SessionID, "missing"), common.ErrNotFound)
	assert.ErrorIs(t, f.ledger.RemoveAttendance(faculty(), "missing", a.AttendanceID), common.ErrNotFound)
	assert.ErrorIs(t, f.ledger.RemoveAttendance(as("fac-2", common.RoleFaculty), cs.SessionID, a.AttendanceID), common.ErrForbidden)

	require.NoError(t, f.ledger.RemoveAttendance(faculty(), cs.SessionID, a.AttendanceID))
	f.rec.Wait()

	v, ok := f.table("math").Cell("stu-1", cs.SessionID)
	assert.True(t, ok)
	assert.Equal(t, 0, v, "roster follows the ledger after a delete")
	v, _ = f.table("math").Cell("stu-2", cs.SessionID)
	assert.Equal(t, 1, v)
}

func TestListPresent_NewestFirst(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)
	_, err := f.mark(cs.Token, "stu-1")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.mark(cs.Token, "stu-3")
	require.NoError(t, err)

	list, err := f.ledger.ListPresent(faculty(), cs.SessionID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "E003", list[0].EnrollmentNo)
	assert.Equal(t, "Abe", list[1].Name)

	_, err = f.ledger.ListPresent(as("stu-1", common.RoleStudent), cs.SessionID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestMyAttendanceAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.open(60)
	s2 := f.open(60)
	f.open(60)
	_, err := f.mark(s1.Token, "stu-1")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.mark(s2.Token, "stu-1")
	require.NoError(t, err)

	recs, err := f.ledger.MyAttendance(ctx, "stu-1", "math")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, s2.SessionID, recs[0].SessionID)

	sum, err := f.ledger.SubjectSummary(ctx, "stu-1", "math")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalSessions)
	assert.Equal(t, 2, sum.PresentCount)
	assert.Equal(t, 67, sum.Percentage)

	sum, err = f.ledger.SubjectSummary(ctx, "stu-1", "history")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Percentage)

	_, err = f.ledger.SubjectSummary(ctx, "stu-1", "")
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestExportSession_CSV(t *testing.T) {
	f := newFixture(t)
	cs := f.open(60)
	_, err := f.mark(cs.Token, "stu-2")
	require.NoError(t, err)

	data, err := f.ledger.ExportSession(faculty(), cs.SessionID, roster.FormatCSV)
	require.NoError(t, err)

	header, rows, err := roster.ReadGrid("s.csv", data)
	require.NoError(t, err)
	assert.Equal(t, sessionExportHeader, header)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"E002", "Bea", "present"}, rows[0][:3])

	_, err = f.ledger.ExportSession(faculty(), cs.SessionID, "pdf")
	assert.ErrorIs(t, err, common.ErrBadRequest)
}
