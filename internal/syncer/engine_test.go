package syncer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite"
	"github.com/dmitrijs2005/altair/internal/repositories/storetest"
	"github.com/dmitrijs2005/altair/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "u1"

// fakeRemote keeps one user's records in memory with version guards and
// monotonic stamps.
type fakeRemote struct {
	mu      sync.Mutex
	rows    map[models.EntityType]map[common.ID]models.SyncRecord
	stamp   time.Time
	offline bool
	pullErr error
	pulls   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:  make(map[models.EntityType]map[common.ID]models.SyncRecord),
		stamp: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) put(rec models.SyncRecord) {
	if f.rows[rec.Type] == nil {
		f.rows[rec.Type] = make(map[common.ID]models.SyncRecord)
	}
	f.stamp = f.stamp.Add(time.Microsecond)
	rec.ModifiedAt = f.stamp
	f.rows[rec.Type][rec.ID] = rec
}

// write stores e as another device would, bumping the version.
func (f *fakeRemote) write(t *testing.T, e models.Entity) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rows[e.EntityType()][e.Meta().ID]; ok {
		e.Meta().Version = cur.Version
	}
	e.Meta().Version++
	rec, err := models.EncodeRecord(e)
	require.NoError(t, err)
	f.put(rec)
}

func (f *fakeRemote) get(t models.EntityType, id common.ID) (models.SyncRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[t][id]
	return r, ok
}

func (f *fakeRemote) Pull(_ context.Context, req models.PullRequest) (*models.PullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, common.ConnectionFailed(nil)
	}
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pulls++
	var out []models.SyncRecord
	for _, r := range f.rows[req.Type] {
		if req.Since == nil || r.ModifiedAt.After(*req.Since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.Before(out[j].ModifiedAt) })
	resp := &models.PullResponse{Entities: []models.SyncRecord{}, ServerTimestamp: f.stamp}
	if len(out) > req.Limit {
		out = out[:req.Limit]
		resp.HasMore = true
		resp.ServerTimestamp = out[len(out)-1].ModifiedAt
	}
	resp.Entities = append(resp.Entities, out...)
	return resp, nil
}

func (f *fakeRemote) Push(_ context.Context, req models.PushRequest) (*models.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, common.ConnectionFailed(nil)
	}
	resp := &models.PushResponse{Accepted: []common.ID{}, Conflicts: []models.SyncConflict{}}
	for _, rec := range req.Entities {
		if cur, ok := f.rows[req.Type][rec.ID]; ok && cur.Version != rec.Version {
			resp.Conflicts = append(resp.Conflicts, models.SyncConflict{
				EntityID: rec.ID, EntityType: rec.Type, ServerVersion: cur.Version, ClientVersion: rec.Version,
				Message: common.VersionConflict(string(rec.Type), rec.ID, cur.Version, rec.Version).Message,
			})
			continue
		}
		rec.Version++
		f.put(rec)
		resp.Accepted = append(resp.Accepted, rec.ID)
	}
	return resp, nil
}

func (f *fakeRemote) Status(context.Context) (*models.SyncStatusResponse, error) {
	return &models.SyncStatusResponse{UserID: user}, nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return common.ConnectionFailed(nil)
	}
	return nil
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func setup(t *testing.T) (*sqlite.Store, *fakeRemote, *Engine) {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	remote := newFakeRemote()
	return s, remote, NewEngine(sqlite.NewMirror(s), remote, testutil.FixedClock(), logging.Nop())
}

func state(t *testing.T, e *Engine) models.SyncState {
	t.Helper()
	st, err := e.Status(context.Background(), user)
	require.NoError(t, err)
	return st.State
}

func newNote(title string) *models.Note {
	n := &models.Note{Title: title}
	n.UserID = user
	n.Touch(testutil.FixedClock().Now())
	return n
}

func TestSync_PushesLocalChanges(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	item := storetest.NewInbox(user, "call the plumber")
	require.NoError(t, s.Repos().Inbox.Create(ctx, item))
	assert.Equal(t, models.SyncStatePending, state(t, e))

	report, err := e.Sync(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Types[models.EntityInboxItem].Accepted)

	rec, ok := remote.get(models.EntityInboxItem, item.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Version)

	got, err := s.Repos().Inbox.GetByID(ctx, user, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, models.SyncStateSynced, state(t, e))

	st, err := e.Status(ctx, user)
	require.NoError(t, err)
	assert.NotNil(t, st.LastSyncAt)
}

func TestSync_PullsRemoteChangesAcrossPages(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	e.PageSize = 2
	for i := 0; i < 5; i++ {
		remote.write(t, newNote("from phone"))
	}

	report, err := e.Sync(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Types[models.EntityNote].Applied)

	notes, err := s.Repos().Notes.GetAllForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, notes, 5)

	// A second round starts from the saved watermark and pulls nothing.
	report, err = e.Sync(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, report.Types[models.EntityNote].Pulled)
}

func TestSync_PulledTombstonesHideRows(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	n := newNote("temporary")
	remote.write(t, n)
	_, err := e.Sync(ctx, user)
	require.NoError(t, err)

	gone := testutil.FixedClock().Now()
	n.DeletedAt = &gone
	remote.write(t, n)
	_, err = e.Sync(ctx, user)
	require.NoError(t, err)

	_, err = s.Repos().Notes.GetByID(ctx, user, n.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSync_ConflictKeepLocal(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	n := newNote("draft")
	require.NoError(t, s.Repos().Notes.Create(ctx, n))
	_, err := e.Sync(ctx, user)
	require.NoError(t, err)

	other := newNote("edited on phone")
	other.ID = n.ID
	remote.write(t, other)

	n.Title = "edited on laptop"
	require.NoError(t, s.Repos().Notes.Update(ctx, n))

	report, err := e.Sync(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts())
	assert.Equal(t, models.SyncStateConflict, state(t, e))

	got, err := s.Repos().Notes.GetByID(ctx, user, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited on laptop", got.Title, "pull does not overwrite a conflicted row")
	rec, _ := remote.get(models.EntityNote, n.ID)
	assert.Equal(t, int64(2), rec.Version, "server copy untouched")

	cs, err := e.Conflicts(ctx, user)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.NotEmpty(t, cs[0].Remote)

	require.NoError(t, e.ResolveConflict(ctx, user, models.EntityNote, n.ID, KeepLocal))
	_, err = e.Sync(ctx, user)
	require.NoError(t, err)

	rec, _ = remote.get(models.EntityNote, n.ID)
	assert.Equal(t, int64(3), rec.Version)
	remoteNote, err := rec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "edited on laptop", remoteNote.(*models.Note).Title)
	assert.Equal(t, models.SyncStateSynced, state(t, e))
}

func TestSync_ConflictKeepRemote(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	n := newNote("draft")
	require.NoError(t, s.Repos().Notes.Create(ctx, n))
	_, err := e.Sync(ctx, user)
	require.NoError(t, err)

	other := newNote("edited on phone")
	other.ID = n.ID
	remote.write(t, other)
	n.Title = "edited on laptop"
	require.NoError(t, s.Repos().Notes.Update(ctx, n))
	_, err = e.Sync(ctx, user)
	require.NoError(t, err)

	require.NoError(t, e.ResolveConflict(ctx, user, models.EntityNote, n.ID, KeepRemote))
	got, err := s.Repos().Notes.GetByID(ctx, user, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited on phone", got.Title)
	assert.Equal(t, models.SyncStateSynced, state(t, e))
}

func TestSync_OfflineKeepsPendingAndWatermark(t *testing.T) {
	s, remote, e := setup(t)
	ctx := context.Background()
	require.NoError(t, s.Repos().Inbox.Create(ctx, storetest.NewInbox(user, "offline capture")))
	remote.setOffline(true)

	_, err := e.Sync(ctx, user)
	require.ErrorIs(t, err, common.ErrConnectionFailed)
	assert.True(t, common.IsRetryable(err))
	assert.False(t, e.Online())
	assert.Equal(t, models.SyncStateOffline, state(t, e))

	wm, err := sqlite.NewMirror(s).Watermark(ctx, user, models.EntityInboxItem)
	require.NoError(t, err)
	assert.Nil(t, wm)

	remote.setOffline(false)
	_, err = e.Sync(ctx, user)
	require.NoError(t, err)
	assert.True(t, e.Online())
	assert.Equal(t, models.SyncStateSynced, state(t, e))
}

func TestStatus_SyncedNeedsSuccessfulPull(t *testing.T) {
	_, remote, e := setup(t)
	ctx := context.Background()

	assert.Equal(t, models.SyncStatePending, state(t, e), "never synced")

	_, err := e.Sync(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, state(t, e))

	remote.mu.Lock()
	remote.pullErr = common.ServerError(500, "boom")
	remote.mu.Unlock()
	_, err = e.Sync(ctx, user)
	require.ErrorIs(t, err, common.ErrServerError)
	assert.True(t, e.Online(), "a server error is not a lost connection")

	st, err := e.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatePending, st.State)
	require.NotNil(t, st.LastFailedAt)

	remote.mu.Lock()
	remote.pullErr = nil
	remote.mu.Unlock()
	_, err = e.Sync(ctx, user)
	require.NoError(t, err)

	st, err = e.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, st.State)
	assert.Nil(t, st.LastFailedAt)
}

func TestWatchConnectivity(t *testing.T) {
	_, remote, e := setup(t)
	remote.setOffline(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.WatchConnectivity(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !e.Online() }, time.Second, 5*time.Millisecond)
	remote.setOffline(false)
	require.Eventually(t, e.Online, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
