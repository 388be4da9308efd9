package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/students"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories and applies
// the embedded schema.
type PostgresRepositoryManager struct{}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// Attendance returns an attendance.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Attendance(db dbx.DBTX) attendance.Repository {
	return attendance.NewPostgresRepository(db)
}

// Students returns a students.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Students(db dbx.DBTX) students.Repository {
	return students.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
