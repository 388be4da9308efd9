package models

// Student is the roster provider's view of a student.
type Student struct {
	ID           string
	EnrollmentNo string
	Name         string
	BranchID     string
	Semester     int
}

// Cohort identifies the students a session is scoped to.
type Cohort struct {
	BranchID string
	Semester int
}
