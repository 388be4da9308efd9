package roster

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
)

// Mark is one imported line: a student and the raw status token.
type Mark struct {
	Line         int
	EnrollmentNo string
	Status       string
}

// presentTokens are the status values that mean "present".
var presentTokens = map[string]bool{"present": true, "1": true, "yes": true, "y": true}

// IsPresent reports whether a non-empty status token means present.
func IsPresent(token string) bool {
	return presentTokens[strings.ToLower(strings.TrimSpace(token))]
}

// ExtractMarks locates the enrollment and status columns of an imported
// grid and returns one Mark per data row with an enrollment number. The
// status column is a header containing "status", else the header equal to
// label (a re-imported roster export). ok is false when neither exists,
// whether or not an enrollment column is present.
func ExtractMarks(header []string, rows [][]string, label string) (marks []Mark, ok bool, err error) {
	enrollCol, statusCol, labelCol := -1, -1, -1
	for i, h := range header {
		lh := strings.ToLower(h)
		switch {
		case enrollCol < 0 && strings.Contains(lh, "enrollment"):
			enrollCol = i
		case statusCol < 0 && strings.Contains(lh, "status"):
			statusCol = i
		case labelCol < 0 && label != "" && h == label:
			labelCol = i
		}
	}
	if statusCol < 0 {
		statusCol = labelCol
	}
	if statusCol < 0 {
		return nil, false, nil
	}
	if enrollCol < 0 {
		return nil, false, fmt.Errorf("%w: no enrollment column in header", common.ErrBadRequest)
	}

	for i, r := range rows {
		enr := cellAt(r, enrollCol)
		if enr == "" {
			continue
		}
		marks = append(marks, Mark{Line: i + 2, EnrollmentNo: enr, Status: cellAt(r, statusCol)})
	}
	return marks, true, nil
}

func cellAt(r []string, i int) string {
	if i < len(r) {
		return strings.TrimSpace(r[i])
	}
	return ""
}
