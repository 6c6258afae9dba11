// Package storetest is the behavioral suite every repositories.Store adapter
// must pass. Adapters call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness is what an adapter provides to the suite.
type Harness struct {
	Store repositories.Store
	// NewUser registers a fresh owner and returns its ID.
	NewUser func(t *testing.T) string
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Run executes the suite; factory is called once per subtest.
func Run(t *testing.T, factory func(t *testing.T) Harness) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"InboxLifecycle", testInboxLifecycle},
		{"SoftDeleteIsIdempotent", testSoftDeleteIdempotent},
		{"OwnershipIsolation", testOwnershipIsolation},
		{"DuplicateCreate", testDuplicateCreate},
		{"WipLimit", testWipLimit},
		{"ConcurrentActivate", testConcurrentActivate},
		{"InvalidTransition", testInvalidTransition},
		{"Checkpoints", testCheckpoints},
		{"Energy", testEnergy},
		{"TxRollback", testTxRollback},
		{"KnowledgeAndTracking", testKnowledgeAndTracking},
		{"RoutinesDue", testRoutinesDue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, factory(t))
		})
	}
}

func NewInbox(userID, content string) *models.InboxItem {
	i := &models.InboxItem{Content: content, Source: models.SourceKeyboard, AttachmentIDs: []common.ID{}}
	i.UserID = userID
	i.Touch(base)
	return i
}

func NewQuest(userID, title string, cost int) *models.Quest {
	q := &models.Quest{Title: title, EnergyCost: cost, Status: models.QuestBacklog, Checkpoints: []models.Checkpoint{}}
	q.UserID = userID
	q.Touch(base)
	return q
}

func testInboxLifecycle(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Inbox

	item := NewInbox(user, "call the dentist")
	require.NoError(t, repo.Create(ctx, item))

	got, err := repo.GetByID(ctx, user, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Content, got.Content)
	assert.Equal(t, models.SourceKeyboard, got.Source)
	assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

	att := common.NewID()
	require.NoError(t, repo.AddAttachment(ctx, user, item.ID, att, base.Add(time.Minute)))
	require.NoError(t, repo.AddAttachment(ctx, user, item.ID, att, base.Add(time.Minute)))
	got, err = repo.GetByID(ctx, user, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []common.ID{att}, got.AttachmentIDs)

	voice := NewInbox(user, "voice memo")
	voice.Source = models.SourceVoice
	require.NoError(t, repo.Create(ctx, voice))
	bySource, err := repo.ListBySource(ctx, user, models.SourceVoice)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, voice.ID, bySource[0].ID)

	all, err := repo.GetAllForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetDeleted(ctx, user, voice.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "live items are not deleted")
	gone := base.Add(2 * time.Minute)
	require.NoError(t, repo.SoftDelete(ctx, user, voice.ID, gone))
	deleted, err := repo.GetDeleted(ctx, user, voice.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.True(t, gone.Equal(*deleted.DeletedAt))
	_, err = repo.GetDeleted(ctx, h.NewUser(t), voice.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testSoftDeleteIdempotent(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Notes

	n := &models.Note{Title: "Reading list", Content: "..."}
	n.UserID = user
	n.Touch(base)
	require.NoError(t, repo.Create(ctx, n))

	require.NoError(t, repo.SoftDelete(ctx, user, n.ID, base.Add(time.Hour)))
	err := repo.SoftDelete(ctx, user, n.ID, base.Add(2*time.Hour))
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.GetByID(ctx, user, n.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	all, err := repo.GetAllForUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, repo.Restore(ctx, user, n.ID, base.Add(3*time.Hour)))
	got, err := repo.GetByID(ctx, user, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)
	assert.ErrorIs(t, repo.Restore(ctx, user, n.ID, base), common.ErrNotFound)
}

func testOwnershipIsolation(t *testing.T, h Harness) {
	ctx := context.Background()
	alice, bob := h.NewUser(t), h.NewUser(t)
	repos := h.Store.Repos()

	q := NewQuest(alice, "Alice's quest", 2)
	require.NoError(t, repos.Quests.Create(ctx, q))

	_, err := repos.Quests.GetByID(ctx, bob, q.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = repos.Quests.Activate(ctx, bob, q.ID, base)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, repos.Quests.SoftDelete(ctx, bob, q.ID, base), common.ErrNotFound)

	list, err := repos.Quests.GetAllForUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testDuplicateCreate(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Inbox

	item := NewInbox(user, "once")
	require.NoError(t, repo.Create(ctx, item))
	err := repo.Create(ctx, item)
	assert.ErrorIs(t, err, common.ErrDuplicate)
}

func testWipLimit(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Quests

	q1 := NewQuest(user, "Q1", 3)
	q2 := NewQuest(user, "Q2", 2)
	require.NoError(t, repo.Create(ctx, q1))
	require.NoError(t, repo.Create(ctx, q2))

	started, err := repo.Activate(ctx, user, q1.ID, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.QuestActive, started.Status)
	require.NotNil(t, started.StartedAt)

	_, err = repo.Activate(ctx, user, q2.ID, base.Add(2*time.Minute))
	require.ErrorIs(t, err, common.ErrWipLimitExceeded)
	var e *common.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, q1.ID.String(), e.EntityID)
	assert.Equal(t, 1, e.Current)
	assert.Equal(t, 1, e.Limit)

	active, err := repo.GetActive(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, q1.ID, active.ID)

	done, err := repo.Transition(ctx, user, q1.ID, []models.QuestStatus{models.QuestActive}, models.QuestCompleted, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.QuestCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = repo.Activate(ctx, user, q2.ID, base.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = repo.GetActive(ctx, h.NewUser(t))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testConcurrentActivate(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Quests

	const n = 8
	ids := make([]common.ID, n)
	for i := range ids {
		q := NewQuest(user, "parallel", 1)
		require.NoError(t, repo.Create(ctx, q))
		ids[i] = q.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id common.ID) {
			defer wg.Done()
			_, err := repo.Activate(ctx, user, id, base)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if !errors.Is(err, common.ErrWipLimitExceeded) {
				others = append(others, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Empty(t, others)
	active, err := repo.ListByStatus(ctx, user, models.QuestActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func testInvalidTransition(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Quests

	q := NewQuest(user, "never started", 1)
	require.NoError(t, repo.Create(ctx, q))

	_, err := repo.Transition(ctx, user, q.ID, []models.QuestStatus{models.QuestActive}, models.QuestCompleted, base)
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := repo.GetByID(ctx, user, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestBacklog, got.Status)

	_, err = repo.Transition(ctx, user, common.NewID(), []models.QuestStatus{models.QuestActive}, models.QuestCompleted, base)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testCheckpoints(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Quests

	q := NewQuest(user, "with steps", 2)
	q.Checkpoints = []models.Checkpoint{
		{ID: common.NewID(), QuestID: q.ID, Title: "one", Order: 0},
		{ID: common.NewID(), QuestID: q.ID, Title: "two", Order: 1},
	}
	require.NoError(t, repo.Create(ctx, q))

	third := models.Checkpoint{ID: common.NewID(), QuestID: q.ID, Title: "three", Order: 2}
	require.NoError(t, repo.AddCheckpoint(ctx, user, &third, base.Add(time.Minute)))

	cp, err := repo.SetCheckpointCompleted(ctx, user, third.ID, true, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, cp.Completed)
	require.NotNil(t, cp.CompletedAt)

	cp, err = repo.SetCheckpointCompleted(ctx, user, third.ID, false, base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, cp.Completed)
	assert.Nil(t, cp.CompletedAt)

	order := []common.ID{third.ID, q.Checkpoints[1].ID, q.Checkpoints[0].ID}
	require.NoError(t, repo.ReorderCheckpoints(ctx, user, q.ID, order, base.Add(4*time.Minute)))
	got, err := repo.GetByID(ctx, user, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Checkpoints, 3)
	for i, c := range got.Checkpoints {
		assert.Equal(t, order[i], c.ID)
		assert.Equal(t, i, c.Order)
	}

	err = repo.ReorderCheckpoints(ctx, user, q.ID, order[:2], base)
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, repo.DeleteCheckpoint(ctx, user, third.ID, base.Add(5*time.Minute)))
	assert.ErrorIs(t, repo.DeleteCheckpoint(ctx, user, third.ID, base), common.ErrNotFound)
	_, err = repo.SetCheckpointCompleted(ctx, h.NewUser(t), q.Checkpoints[0].ID, true, base)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testEnergy(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Energy

	_, err := repo.Get(ctx, user, "2026-03-02")
	assert.ErrorIs(t, err, common.ErrNotFound)

	e, err := repo.AddSpent(ctx, user, "2026-03-02", 3, 5, base)
	require.NoError(t, err)
	assert.Equal(t, 5, e.Budget)
	assert.Equal(t, 3, e.Spent)

	e, err = repo.AddSpent(ctx, user, "2026-03-02", 4, 5, base)
	require.NoError(t, err)
	assert.Equal(t, 7, e.Spent, "spent may exceed budget")

	e, err = repo.SetBudget(ctx, user, "2026-03-02", 8, base)
	require.NoError(t, err)
	assert.Equal(t, 8, e.Budget)
	assert.Equal(t, 7, e.Spent)

	_, err = repo.SetBudget(ctx, user, "2026-03-03", 2, base)
	require.NoError(t, err)
	list, err := repo.ListRange(ctx, user, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-03-02", list[0].Date)

	e, err = repo.ResetSpent(ctx, user, "2026-03-02", base)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Spent)
	_, err = repo.ResetSpent(ctx, user, "2027-01-01", base)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testTxRollback(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	boom := errors.New("boom")

	item := NewInbox(user, "rolled back")
	err := h.Store.WithinTx(ctx, func(ctx context.Context, r repositories.Repositories) error {
		if err := r.Inbox.Create(ctx, item); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = h.Store.Repos().Inbox.GetByID(ctx, user, item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func testKnowledgeAndTracking(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repos := h.Store.Repos()
	folder := common.NewID()
	location := common.NewID()

	n := &models.Note{Title: "Kafka notes", Content: "partitions", FolderID: &folder}
	n.UserID = user
	n.Touch(base)
	require.NoError(t, repos.Notes.Create(ctx, n))
	n.Content = "partitions and offsets"
	n.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, repos.Notes.Update(ctx, n))
	notes, err := repos.Notes.ListByFolder(ctx, user, folder)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "partitions and offsets", notes[0].Content)

	it := &models.Item{Name: "Drill", Quantity: 1, LocationID: &location}
	it.UserID = user
	it.Touch(base)
	require.NoError(t, repos.Items.Create(ctx, it))
	items, err := repos.Items.ListByLocation(ctx, user, location)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Drill", items[0].Name)

	doc := &models.SourceDocument{Title: "RFC 9562", SourceType: models.SourceTypeURL, URI: "https://www.rfc-editor.org/rfc/rfc9562"}
	doc.UserID = user
	doc.Touch(base)
	require.NoError(t, repos.Sources.Create(ctx, doc))
	docs, err := repos.Sources.ListByType(ctx, user, models.SourceTypeURL)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.URI, docs[0].URI)

	missing := &models.Item{Name: "ghost"}
	missing.UserID = user
	missing.Touch(base)
	assert.ErrorIs(t, repos.Items.Update(ctx, missing), common.ErrNotFound)
}

func testRoutinesDue(t *testing.T, h Harness) {
	ctx := context.Background()
	user := h.NewUser(t)
	repo := h.Store.Repos().Routines

	due := &models.Routine{Title: "Stretch", Schedule: "0 8 * * *", EnergyCost: 1, Active: true, NextDue: base.Add(-time.Hour)}
	due.UserID = user
	due.Touch(base)
	later := &models.Routine{Title: "Review week", Schedule: "0 18 * * 5", EnergyCost: 2, Active: true, NextDue: base.Add(48 * time.Hour)}
	later.UserID = user
	later.Touch(base)
	paused := &models.Routine{Title: "Paused", Schedule: "0 8 * * *", EnergyCost: 1, Active: false, NextDue: base.Add(-time.Hour)}
	paused.UserID = user
	paused.Touch(base)
	for _, r := range []*models.Routine{due, later, paused} {
		require.NoError(t, repo.Create(ctx, r))
	}

	list, err := repo.ListDue(ctx, user, base)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	next, err := due.NextAfter(base)
	require.NoError(t, err)
	require.NoError(t, repo.AdvanceNextDue(ctx, user, due.ID, next, base))
	list, err = repo.ListDue(ctx, user, base)
	require.NoError(t, err)
	assert.Empty(t, list)
}
