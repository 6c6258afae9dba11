// Package triage turns captured inbox items into typed entities.
//
// A triage creates exactly one target and soft-deletes the source item in a
// single store transaction. Callers that pre-generate the target ID may retry
// a failed call safely: a retry after a successful commit returns the same ID.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/timex"
)

type Kind string

const (
	KindQuest          Kind = "quest"
	KindNote           Kind = "note"
	KindItem           Kind = "item"
	KindSourceDocument Kind = "sourceDocument"
)

// kindAliases are other accepted spellings of a Kind.
var kindAliases = map[Kind]Kind{
	"source_document": KindSourceDocument,
}

func (k Kind) canonical() Kind {
	if c, ok := kindAliases[k]; ok {
		return c
	}
	return k
}

// Target is the entity an inbox item becomes. Exactly one payload must be
// set and it must match Kind.
type Target struct {
	Kind           Kind                   `json:"kind"`
	Quest          *models.Quest          `json:"quest,omitempty"`
	Note           *models.Note           `json:"note,omitempty"`
	Item           *models.Item           `json:"item,omitempty"`
	SourceDocument *models.SourceDocument `json:"sourceDocument,omitempty"`
}

func (t Target) payload() (models.Entity, error) {
	set := 0
	var e models.Entity
	if t.Quest != nil {
		set++
		e = t.Quest
	}
	if t.Note != nil {
		set++
		e = t.Note
	}
	if t.Item != nil {
		set++
		e = t.Item
	}
	if t.SourceDocument != nil {
		set++
		e = t.SourceDocument
	}
	if set != 1 {
		return nil, common.Validation("target", "exactly one payload required")
	}

	want := map[Kind]models.EntityType{
		KindQuest:          models.EntityQuest,
		KindNote:           models.EntityNote,
		KindItem:           models.EntityItem,
		KindSourceDocument: models.EntitySourceDocument,
	}
	et, ok := want[t.Kind]
	if !ok {
		return nil, common.Validation("target", fmt.Sprintf("unknown kind %q", t.Kind))
	}
	if e.EntityType() != et {
		return nil, common.Validation("target", fmt.Sprintf("payload is %s, kind is %s", e.EntityType(), t.Kind))
	}
	return e, nil
}

// Engine runs triage against a store.
type Engine struct {
	store  repositories.Store
	clock  timex.Clock
	logger logging.Logger
}

func NewEngine(store repositories.Store, clock timex.Clock, logger logging.Logger) *Engine {
	return &Engine{store: store, clock: clock, logger: logger.With("module", "triage")}
}

// Triage converts the inbox item into target and returns the target ID.
func (e *Engine) Triage(ctx context.Context, userID string, itemID common.ID, target Target) (common.ID, error) {
	target.Kind = target.Kind.canonical()
	ent, err := target.payload()
	if err != nil {
		return "", err
	}
	m := ent.Meta()
	preset := m.ID

	repos := e.store.Repos()
	if _, err := repos.Inbox.GetByID(ctx, userID, itemID); err != nil {
		if errors.Is(err, common.ErrNotFound) && !preset.IsZero() {
			if done, lookupErr := e.alreadyTriaged(ctx, repos, userID, itemID, ent); lookupErr != nil {
				return "", lookupErr
			} else if done {
				e.logger.Info(ctx, "triage retry matched existing target", "item", itemID, "target", preset)
				return preset, nil
			}
		}
		return "", err
	}

	now := timex.Stamp(e.clock.Now())
	m.UserID = userID
	m.CreatedAt = now
	m.Touch(now)
	m.DeletedAt = nil
	m.Version = 0
	if q, ok := ent.(*models.Quest); ok {
		prepareQuest(q)
	}
	if err := ent.Validate(); err != nil {
		return "", err
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, r repositories.Repositories) error {
		if err := create(ctx, r, ent); err != nil {
			return err
		}
		return r.Inbox.SoftDelete(ctx, userID, itemID, now)
	})
	if err != nil {
		e.logger.Warn(ctx, "triage failed", "item", itemID, "kind", target.Kind, "error", err)
		return "", err
	}
	e.logger.Info(ctx, "item triaged", "item", itemID, "kind", target.Kind, "target", m.ID)
	return m.ID, nil
}

// Discard soft-deletes the item without creating a target.
func (e *Engine) Discard(ctx context.Context, userID string, itemID common.ID) error {
	if err := e.store.Repos().Inbox.SoftDelete(ctx, userID, itemID, timex.Stamp(e.clock.Now())); err != nil {
		return err
	}
	e.logger.Info(ctx, "item discarded", "item", itemID)
	return nil
}

// prepareQuest applies creation defaults. Triaged quests always start in
// the backlog; activation goes through the lifecycle controller.
func prepareQuest(q *models.Quest) {
	if q.Status == "" {
		q.Status = models.QuestBacklog
	}
	q.StartedAt, q.CompletedAt = nil, nil
	if q.Checkpoints == nil {
		q.Checkpoints = []models.Checkpoint{}
	}
	for i := range q.Checkpoints {
		cp := &q.Checkpoints[i]
		if cp.ID.IsZero() {
			cp.ID = common.NewID()
		}
		cp.QuestID = q.ID
		cp.Order = i
	}
}

func create(ctx context.Context, r repositories.Repositories, ent models.Entity) error {
	switch v := ent.(type) {
	case *models.Quest:
		if v.Status != models.QuestBacklog {
			return common.Validation("status", "triaged quests start in BACKLOG")
		}
		return r.Quests.Create(ctx, v)
	case *models.Note:
		return r.Notes.Create(ctx, v)
	case *models.Item:
		return r.Items.Create(ctx, v)
	case *models.SourceDocument:
		return r.Sources.Create(ctx, v)
	}
	return common.Validation("target", "unsupported payload")
}

// alreadyTriaged reports whether the preset target was created by an
// earlier triage of itemID. Triage stamps the target's creation and the
// item's deletion with the same instant, so a target created at any other
// time did not come from this item.
func (e *Engine) alreadyTriaged(ctx context.Context, r repositories.Repositories, userID string, itemID common.ID, ent models.Entity) (bool, error) {
	id := ent.Meta().ID
	var (
		created time.Time
		err     error
	)
	switch ent.(type) {
	case *models.Quest:
		var v *models.Quest
		if v, err = r.Quests.GetByID(ctx, userID, id); err == nil {
			created = v.CreatedAt
		}
	case *models.Note:
		var v *models.Note
		if v, err = r.Notes.GetByID(ctx, userID, id); err == nil {
			created = v.CreatedAt
		}
	case *models.Item:
		var v *models.Item
		if v, err = r.Items.GetByID(ctx, userID, id); err == nil {
			created = v.CreatedAt
		}
	case *models.SourceDocument:
		var v *models.SourceDocument
		if v, err = r.Sources.GetByID(ctx, userID, id); err == nil {
			created = v.CreatedAt
		}
	}
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	item, err := r.Inbox.GetDeleted(ctx, userID, itemID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return item.DeletedAt.Equal(created), nil
}
