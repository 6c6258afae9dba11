// Package postgres is the remote authority store. It implements the
// repositories contracts on Postgres through pgx's database/sql driver and
// serves the pull/push side of synchronization through Authority.
//
// Every write to a synced row bumps its version and stamps modified_at from
// the owner's strictly increasing users.last_stamp, which is the pull
// watermark clients store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/repositories/postgres/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Store owns the server's connection pool.
type Store struct {
	db *sql.DB
}

var _ repositories.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle without migrating it.
func New(db *sql.DB) *Store { return &Store{db: db} }

func RunMigrations(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Repos() repositories.Repositories { return newRepos(s.db) }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repositories.Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepos(tx))
	})
}

func (s *Store) Users() *UserRepository { return NewUserRepository(s.db) }

func (s *Store) RefreshTokens() *RefreshTokenRepository { return NewRefreshTokenRepository(s.db) }

func newRepos(db dbx.DBTX) repositories.Repositories {
	return repositories.Repositories{
		Inbox:    NewInboxRepository(db),
		Quests:   NewQuestRepository(db),
		Energy:   NewEnergyRepository(db),
		Notes:    NewNoteRepository(db),
		Items:    NewItemRepository(db),
		Sources:  NewSourceDocumentRepository(db),
		Routines: NewRoutineRepository(db),
	}
}
