package models

import "time"

// Attendance statuses. Stored records are always present; absent is the
// import-side interpretation that removes a record.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// AttendanceRecord is one ledger event. (SessionID, StudentID) is unique.
type AttendanceRecord struct {
	ID        string
	SessionID string
	StudentID string
	SubjectID string
	// SelfieRef is an opaque blob store reference, empty when no selfie was sent.
	SelfieRef string
	MarkedAt  time.Time
	Status    string
}

// PresentEntry is a ledger record joined with the student's roster identity,
// used for live monitoring.
type PresentEntry struct {
	AttendanceRecord
	EnrollmentNo string
	Name         string
}
