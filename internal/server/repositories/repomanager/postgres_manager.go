package repomanager

import (
	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/repositories/postgres"
)

// PostgresRepositoryManager vends PostgreSQL-backed account repositories.
type PostgresRepositoryManager struct{}

var _ RepositoryManager = (*PostgresRepositoryManager)(nil)

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) repositories.UserRepository {
	return postgres.NewUserRepository(db)
}

func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) repositories.RefreshTokenRepository {
	return postgres.NewRefreshTokenRepository(db)
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
