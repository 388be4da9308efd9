package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/students"
)

// MemoryRepositoryManager serves every repository from a single arena. The
// db handle is ignored; transactions are not supported, so callers pass nil.
type MemoryRepositoryManager struct {
	arena *memory.Arena
}

// NewMemoryRepositoryManager returns a manager over a fresh arena.
func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{arena: memory.NewArena()}
}

// RunMigrations is a no-op for the arena.
func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository {
	return m.arena.Sessions()
}

func (m *MemoryRepositoryManager) Attendance(dbx.DBTX) attendance.Repository {
	return m.arena.Attendance()
}

func (m *MemoryRepositoryManager) Students(dbx.DBTX) students.Repository {
	return m.arena.Students()
}
