// Package repositories declares the storage contracts shared by the local
// SQLite mirror and the remote Postgres authority. Every method is scoped by
// the caller's user ID; rows owned by someone else behave as missing.
//
// Errors are *common.Error values: NotFound for missing or soft-deleted rows,
// Conflict for duplicate keys and WIP violations, Storage for driver failures.
package repositories

import (
	"context"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
)

type InboxRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error)
	// GetDeleted returns a soft-deleted item, or NotFound when the item is
	// live or absent.
	GetDeleted(ctx context.Context, userID string, id common.ID) (*models.InboxItem, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.InboxItem, error)
	ListBySource(ctx context.Context, userID string, source models.CaptureSource) ([]*models.InboxItem, error)
	Create(ctx context.Context, item *models.InboxItem) error
	AddAttachment(ctx context.Context, userID string, id, attachmentID common.ID, now time.Time) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error
}

type QuestRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.Quest, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.Quest, error)
	ListByStatus(ctx context.Context, userID string, status models.QuestStatus) ([]*models.Quest, error)
	ListByEpic(ctx context.Context, userID string, epicID common.ID) ([]*models.Quest, error)
	// GetActive returns the user's ACTIVE quest or NotFound.
	GetActive(ctx context.Context, userID string) (*models.Quest, error)

	// Create inserts q with its checkpoints. Status changes afterwards go
	// through Activate and Transition only.
	Create(ctx context.Context, q *models.Quest) error
	// Update writes title, description, energy cost, epic and routine.
	Update(ctx context.Context, q *models.Quest) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error

	// Activate moves a BACKLOG quest to ACTIVE in one guarded operation.
	// It fails with WipLimitExceeded when another quest is ACTIVE.
	Activate(ctx context.Context, userID string, id common.ID, now time.Time) (*models.Quest, error)
	// Transition moves a quest whose status is in from to status to.
	Transition(ctx context.Context, userID string, id common.ID, from []models.QuestStatus, to models.QuestStatus, now time.Time) (*models.Quest, error)

	AddCheckpoint(ctx context.Context, userID string, cp *models.Checkpoint, now time.Time) error
	SetCheckpointCompleted(ctx context.Context, userID string, checkpointID common.ID, completed bool, now time.Time) (*models.Checkpoint, error)
	// ReorderCheckpoints assigns order 0..n-1 following ids.
	ReorderCheckpoints(ctx context.Context, userID string, questID common.ID, ids []common.ID, now time.Time) error
	DeleteCheckpoint(ctx context.Context, userID string, checkpointID common.ID, now time.Time) error
}

type EnergyRepository interface {
	Get(ctx context.Context, userID, date string) (*models.EnergyBudget, error)
	ListRange(ctx context.Context, userID, from, to string) ([]*models.EnergyBudget, error)
	SetBudget(ctx context.Context, userID, date string, budget int, now time.Time) (*models.EnergyBudget, error)
	// AddSpent atomically increments spent, creating the row with
	// defaultBudget when absent.
	AddSpent(ctx context.Context, userID, date string, amount, defaultBudget int, now time.Time) (*models.EnergyBudget, error)
	ResetSpent(ctx context.Context, userID, date string, now time.Time) (*models.EnergyBudget, error)
}

type NoteRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.Note, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.Note, error)
	ListByFolder(ctx context.Context, userID string, folderID common.ID) ([]*models.Note, error)
	Create(ctx context.Context, n *models.Note) error
	Update(ctx context.Context, n *models.Note) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error
}

type ItemRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.Item, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.Item, error)
	ListByLocation(ctx context.Context, userID string, locationID common.ID) ([]*models.Item, error)
	Create(ctx context.Context, i *models.Item) error
	Update(ctx context.Context, i *models.Item) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error
}

type SourceDocumentRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.SourceDocument, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.SourceDocument, error)
	ListByType(ctx context.Context, userID string, t models.SourceType) ([]*models.SourceDocument, error)
	Create(ctx context.Context, s *models.SourceDocument) error
	Update(ctx context.Context, s *models.SourceDocument) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error
}

type RoutineRepository interface {
	GetByID(ctx context.Context, userID string, id common.ID) (*models.Routine, error)
	GetAllForUser(ctx context.Context, userID string) ([]*models.Routine, error)
	// ListDue returns active routines whose next occurrence is at or before t.
	ListDue(ctx context.Context, userID string, t time.Time) ([]*models.Routine, error)
	Create(ctx context.Context, r *models.Routine) error
	Update(ctx context.Context, r *models.Routine) error
	AdvanceNextDue(ctx context.Context, userID string, id common.ID, next, now time.Time) error
	SoftDelete(ctx context.Context, userID string, id common.ID, now time.Time) error
	Restore(ctx context.Context, userID string, id common.ID, now time.Time) error
}

// Repositories is a set of repositories bound to one connection or transaction.
type Repositories struct {
	Inbox    InboxRepository
	Quests   QuestRepository
	Energy   EnergyRepository
	Notes    NoteRepository
	Items    ItemRepository
	Sources  SourceDocumentRepository
	Routines RoutineRepository
}

// Store is implemented by both adapters.
type Store interface {
	Repos() Repositories
	// WithinTx runs fn with repositories bound to a single transaction,
	// committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}

// UserRepository and RefreshTokenRepository exist on the server only.
type UserRepository interface {
	// Create fails with Duplicate when the user name is taken.
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	// ListIDs returns every enabled user's ID.
	ListIDs(ctx context.Context) ([]string, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, userID, token string, expires time.Time) error
	// Find returns NotFound when the token is unknown.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
}
