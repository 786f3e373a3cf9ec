package repomanager

import (
	"context"
	"database/sql"

	"github.com/shelfmark/authd/internal/dbx"
	"github.com/shelfmark/authd/internal/server/repositories/codes"
	"github.com/shelfmark/authd/internal/server/repositories/tokens"
	"github.com/shelfmark/authd/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can run
// the same repository code against the pool or against an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Codes(db dbx.DBTX) codes.Repository
}
