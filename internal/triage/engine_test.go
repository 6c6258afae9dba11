package triage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite"
	"github.com/dmitrijs2005/altair/internal/repositories/storetest"
	"github.com/dmitrijs2005/altair/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "u1"

func setup(t *testing.T) (*sqlite.Store, *Engine, *models.InboxItem) {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	item := storetest.NewInbox(user, "buy a bike lock")
	require.NoError(t, s.Repos().Inbox.Create(context.Background(), item))
	return s, NewEngine(s, testutil.FixedClock(), logging.Nop()), item
}

func TestTriage_ToQuest(t *testing.T) {
	s, e, item := setup(t)
	ctx := context.Background()

	id, err := e.Triage(ctx, user, item.ID, Target{Kind: KindQuest, Quest: &models.Quest{
		Title:       "Buy a bike lock",
		EnergyCost:  2,
		Checkpoints: []models.Checkpoint{{Title: "compare prices"}, {Title: "order"}},
	}})
	require.NoError(t, err)

	q, err := s.Repos().Quests.GetByID(ctx, user, id)
	require.NoError(t, err)
	assert.Equal(t, models.QuestBacklog, q.Status)
	require.Len(t, q.Checkpoints, 2)
	assert.Equal(t, "order", q.Checkpoints[1].Title)
	assert.Equal(t, id, q.Checkpoints[1].QuestID)

	_, err = s.Repos().Inbox.GetByID(ctx, user, item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "source item is soft-deleted")
}

func TestTriage_EachKind(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		lookup func(r repositories.Repositories, id common.ID) error
	}{
		{
			name:   "note",
			target: Target{Kind: KindNote, Note: &models.Note{Title: "Lock models", Content: "U-lock vs chain"}},
			lookup: func(r repositories.Repositories, id common.ID) error {
				_, err := r.Notes.GetByID(context.Background(), user, id)
				return err
			},
		},
		{
			name:   "item",
			target: Target{Kind: KindItem, Item: &models.Item{Name: "Bike lock", Quantity: 1}},
			lookup: func(r repositories.Repositories, id common.ID) error {
				_, err := r.Items.GetByID(context.Background(), user, id)
				return err
			},
		},
		{
			name: "source document",
			target: Target{Kind: KindSourceDocument, SourceDocument: &models.SourceDocument{
				Title: "Lock review", SourceType: models.SourceTypeURL, URI: "https://example.com/locks"}},
			lookup: func(r repositories.Repositories, id common.ID) error {
				_, err := r.Sources.GetByID(context.Background(), user, id)
				return err
			},
		},
		{
			name: "source document, snake case kind",
			target: Target{Kind: "source_document", SourceDocument: &models.SourceDocument{
				Title: "Lock review", SourceType: models.SourceTypeText}},
			lookup: func(r repositories.Repositories, id common.ID) error {
				_, err := r.Sources.GetByID(context.Background(), user, id)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, item := setup(t)
			id, err := e.Triage(context.Background(), user, item.ID, tt.target)
			require.NoError(t, err)
			require.NoError(t, tt.lookup(s.Repos(), id))
		})
	}
}

func TestTarget_DecodesWireKind(t *testing.T) {
	var target Target
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"sourceDocument","sourceDocument":{"title":"Lock review","sourceType":"text"}}`), &target))
	assert.Equal(t, KindSourceDocument, target.Kind)

	ent, err := target.payload()
	require.NoError(t, err)
	assert.Equal(t, models.EntitySourceDocument, ent.EntityType())
}

func TestTriage_RejectsBadTargets(t *testing.T) {
	tests := []struct {
		name   string
		target Target
	}{
		{"no payload", Target{Kind: KindNote}},
		{"two payloads", Target{Kind: KindNote, Note: &models.Note{Title: "a"}, Item: &models.Item{Name: "b"}}},
		{"kind mismatch", Target{Kind: KindItem, Note: &models.Note{Title: "a"}}},
		{"unknown kind", Target{Kind: "epic", Note: &models.Note{Title: "a"}}},
		{"invalid payload", Target{Kind: KindQuest, Quest: &models.Quest{Title: "x", EnergyCost: 9}}},
		{"active quest", Target{Kind: KindQuest, Quest: &models.Quest{Title: "x", EnergyCost: 1, Status: models.QuestActive}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, item := setup(t)
			_, err := e.Triage(context.Background(), user, item.ID, tt.target)
			require.ErrorIs(t, err, common.ErrValidation)

			_, err = s.Repos().Inbox.GetByID(context.Background(), user, item.ID)
			assert.NoError(t, err, "item stays in the inbox")
		})
	}
}

func TestTriage_MissingItem(t *testing.T) {
	_, e, _ := setup(t)
	_, err := e.Triage(context.Background(), user, common.NewID(), Target{Kind: KindNote, Note: &models.Note{Title: "a"}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTriage_OtherUsersItemIsMissing(t *testing.T) {
	_, e, item := setup(t)
	_, err := e.Triage(context.Background(), "u2", item.ID, Target{Kind: KindNote, Note: &models.Note{Title: "a"}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTriage_RetryWithPresetIDReturnsSameTarget(t *testing.T) {
	s, e, item := setup(t)
	ctx := context.Background()
	preset := common.NewID()
	target := func() Target {
		n := &models.Note{Title: "Lock models"}
		n.ID = preset
		return Target{Kind: KindNote, Note: n}
	}

	id, err := e.Triage(ctx, user, item.ID, target())
	require.NoError(t, err)
	assert.Equal(t, preset, id)

	id, err = e.Triage(ctx, user, item.ID, target())
	require.NoError(t, err)
	assert.Equal(t, preset, id)

	notes, err := s.Repos().Notes.GetAllForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestTriage_PresetIDOfAnotherItemIsNotARetry(t *testing.T) {
	s, _, first := setup(t)
	ctx := context.Background()
	clock := testutil.FixedClock()
	e := NewEngine(s, clock, logging.Nop())
	second := storetest.NewInbox(user, "sell the old bike")
	require.NoError(t, s.Repos().Inbox.Create(ctx, second))

	preset := common.NewID()
	target := func() Target {
		n := &models.Note{Title: "Lock models"}
		n.ID = preset
		return Target{Kind: KindNote, Note: n}
	}
	_, err := e.Triage(ctx, user, first.ID, target())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, e.Discard(ctx, user, second.ID))

	_, err = e.Triage(ctx, user, second.ID, target())
	assert.ErrorIs(t, err, common.ErrNotFound)

	// the genuine retry of the first item still resolves
	id, err := e.Triage(ctx, user, first.ID, target())
	require.NoError(t, err)
	assert.Equal(t, preset, id)
}

func TestTriage_SecondTriageWithoutPresetFails(t *testing.T) {
	s, e, item := setup(t)
	ctx := context.Background()
	_, err := e.Triage(ctx, user, item.ID, Target{Kind: KindNote, Note: &models.Note{Title: "first"}})
	require.NoError(t, err)

	_, err = e.Triage(ctx, user, item.ID, Target{Kind: KindNote, Note: &models.Note{Title: "second"}})
	require.ErrorIs(t, err, common.ErrNotFound)

	notes, err := s.Repos().Notes.GetAllForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

// failingStore fails the inbox soft-delete inside transactions, after the
// target insert already ran.
type failingStore struct {
	*sqlite.Store
}

type failingInbox struct {
	repositories.InboxRepository
}

func (failingInbox) SoftDelete(context.Context, string, common.ID, time.Time) error {
	return common.Storage("soft delete inbox_item", errors.New("disk I/O error"))
}

func (s failingStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, r repositories.Repositories) error {
		r.Inbox = failingInbox{r.Inbox}
		return fn(ctx, r)
	})
}

func TestTriage_StorageFailureLeavesNoTarget(t *testing.T) {
	s, _, item := setup(t)
	ctx := context.Background()
	e := NewEngine(failingStore{s}, testutil.FixedClock(), logging.Nop())

	preset := common.NewID()
	n := &models.Note{Title: "Lock models"}
	n.ID = preset
	_, err := e.Triage(ctx, user, item.ID, Target{Kind: KindNote, Note: n})
	require.ErrorIs(t, err, common.ErrStorage)
	assert.True(t, common.IsRetryable(err))

	_, err = s.Repos().Notes.GetByID(ctx, user, preset)
	assert.ErrorIs(t, err, common.ErrNotFound, "target insert rolled back")
	_, err = s.Repos().Inbox.GetByID(ctx, user, item.ID)
	assert.NoError(t, err)

	// The retry against a healthy store succeeds with the same id.
	n2 := &models.Note{Title: "Lock models"}
	n2.ID = preset
	id, err := NewEngine(s, testutil.FixedClock(), logging.Nop()).Triage(ctx, user, item.ID, Target{Kind: KindNote, Note: n2})
	require.NoError(t, err)
	assert.Equal(t, preset, id)
}

func TestDiscard(t *testing.T) {
	s, e, item := setup(t)
	ctx := context.Background()
	require.NoError(t, e.Discard(ctx, user, item.ID))

	_, err := s.Repos().Inbox.GetByID(ctx, user, item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, e.Discard(ctx, user, item.ID), common.ErrNotFound)
}
