package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/groupfiles/internal/dbx"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/files"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/groups"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Groups(db dbx.DBTX) groups.Repository
}
