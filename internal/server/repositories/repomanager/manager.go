// Package repomanager vends repository implementations bound to a database
// handle, so services can run the same code against *sql.DB or a *sql.Tx.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/rollkeeper/internal/dbx"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rollkeeper/internal/server/repositories/students"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Attendance(db dbx.DBTX) attendance.Repository
	Students(db dbx.DBTX) students.Repository
}
