package repomanager

import (
	"context"
	"database/sql"

	"github.com/haulhq/driveronboard/internal/dbx"
	"github.com/haulhq/driveronboard/internal/server/repositories/records"
	"github.com/haulhq/driveronboard/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
	Records(db dbx.DBTX) records.Repository
}
