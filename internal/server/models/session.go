// Package models defines server-side data models persisted in the database.
package models

import "time"

// Session is a time-boxed invitation for students of one branch+semester to
// self-report presence for one subject occurrence.
type Session struct {
	ID        string
	Token     string
	FacultyID string
	SubjectID string
	BranchID  string
	Semester  int
	ExpiresAt time.Time
	// ClosedAt is nil until the owner closes the session. Closing is terminal.
	ClosedAt  *time.Time
	CreatedAt time.Time
}

// IsClosed reports whether the session has been explicitly closed.
func (s *Session) IsClosed() bool {
	return s.ClosedAt != nil
}

// IsActive reports whether students may still mark attendance at now.
// Expiry is evaluated lazily; nothing sweeps expired sessions.
func (s *Session) IsActive(now time.Time) bool {
	return s.ClosedAt == nil && now.Before(s.ExpiresAt)
}
