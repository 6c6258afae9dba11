// Package repomanager vends account repositories bound to a DBTX so
// services can run them either on the pool or inside a transaction.
package repomanager

import (
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/repositories"
)

type RepositoryManager interface {
	Users(db dbx.DBTX) repositories.UserRepository
	RefreshTokens(db dbx.DBTX) repositories.RefreshTokenRepository
}
