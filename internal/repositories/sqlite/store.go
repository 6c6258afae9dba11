// Package sqlite is the local embedded store: the device mirror used while
// offline. It implements the repositories contracts on modernc.org/sqlite and
// tracks unpushed changes with the pending and local_rev columns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/altair/internal/dbx"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Store owns the local database handle.
type Store struct {
	db *sql.DB
}

var _ repositories.Store = (*Store)(nil)

// Open opens (or creates) the database at dsn and applies migrations.
// A single connection is kept so every write is serialized by SQLite, which
// also lets ":memory:" databases survive between statements.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
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
