// Package syncer reconciles the device mirror with the server.
//
// A sync pushes pending rows then pulls changed rows for every entity type.
// Types run concurrently; one type of one user never syncs twice at once.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/timex"
	"golang.org/x/sync/errgroup"
)

// Remote is the server's sync surface as seen by the client.
type Remote interface {
	Pull(ctx context.Context, req models.PullRequest) (*models.PullResponse, error)
	Push(ctx context.Context, req models.PushRequest) (*models.PushResponse, error)
	Status(ctx context.Context) (*models.SyncStatusResponse, error)
	Ping(ctx context.Context) error
}

// Local is the mirror's sync surface.
type Local interface {
	Pending(ctx context.Context, userID string, t models.EntityType) ([]models.SyncRecord, error)
	ApplyRemote(ctx context.Context, userID string, recs []models.SyncRecord, now time.Time) (int, error)
	CompletePush(ctx context.Context, userID string, t models.EntityType, pushed []models.SyncRecord, resp *models.PushResponse, now time.Time) error
	Conflicts(ctx context.Context, userID string) ([]models.LocalConflict, error)
	ResolveConflict(ctx context.Context, userID string, t models.EntityType, id common.ID, keepLocal bool, now time.Time) error
	Counts(ctx context.Context, userID string) (pending, conflicts int, err error)
	Watermark(ctx context.Context, userID string, t models.EntityType) (*time.Time, error)
	SetWatermark(ctx context.Context, userID string, t models.EntityType, ts time.Time) error
	LastSync(ctx context.Context, userID string) (*time.Time, error)
	SetLastSync(ctx context.Context, userID string, ts time.Time) error
	LastFailure(ctx context.Context, userID string) (*time.Time, error)
	SetLastFailure(ctx context.Context, userID string, ts *time.Time) error
}

type Resolution int

const (
	KeepLocal Resolution = iota
	KeepRemote
)

const (
	DefaultPageSize  = 50
	DefaultBatchSize = 100
)

// TypeReport summarizes one entity type of a sync run.
type TypeReport struct {
	Pushed    int
	Accepted  int
	Conflicts int
	Pulled    int
	Applied   int
}

type Report struct {
	Types map[models.EntityType]TypeReport
}

// Conflicts returns the conflict total across types.
func (r *Report) Conflicts() int {
	n := 0
	for _, t := range r.Types {
		n += t.Conflicts
	}
	return n
}

type Engine struct {
	local  Local
	remote Remote
	clock  timex.Clock
	logger logging.Logger

	PageSize  int
	BatchSize int

	online  atomic.Bool
	syncing atomic.Int32

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(local Local, remote Remote, clock timex.Clock, logger logging.Logger) *Engine {
	e := &Engine{
		local:     local,
		remote:    remote,
		clock:     clock,
		logger:    logger.With("module", "syncer"),
		PageSize:  DefaultPageSize,
		BatchSize: DefaultBatchSize,
		locks:     make(map[string]*sync.Mutex),
	}
	e.online.Store(true)
	return e
}

func (e *Engine) lock(key string) func() {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Online reports the last observed reachability of the server.
func (e *Engine) Online() bool { return e.online.Load() }

func (e *Engine) setOnline(ctx context.Context, v bool) {
	if e.online.Swap(v) != v {
		e.logger.Info(ctx, "connectivity changed", "online", v)
	}
}

func (e *Engine) observe(ctx context.Context, err error) {
	if errors.Is(err, common.ErrConnectionFailed) || errors.Is(err, common.ErrTimeout) {
		e.setOnline(ctx, false)
	}
}

// Sync runs a full push/pull round for every synced type. A failed round is
// remembered until the next successful one.
func (e *Engine) Sync(ctx context.Context, userID string) (*Report, error) {
	e.syncing.Add(1)
	defer e.syncing.Add(-1)

	report, err := e.syncAll(ctx, userID)
	now := timex.Stamp(e.clock.Now())
	if err != nil {
		e.observe(ctx, err)
		e.logger.Warn(ctx, "sync failed", "user", userID, "error", err)
		if ferr := e.local.SetLastFailure(context.WithoutCancel(ctx), userID, &now); ferr != nil {
			e.logger.Error(ctx, "recording sync failure", "user", userID, "error", ferr)
		}
		return report, err
	}
	e.setOnline(ctx, true)

	if err := e.local.SetLastSync(ctx, userID, now); err != nil {
		return report, err
	}
	if err := e.local.SetLastFailure(ctx, userID, nil); err != nil {
		return report, err
	}
	e.logger.Info(ctx, "sync finished", "user", userID, "conflicts", report.Conflicts())
	return report, nil
}

func (e *Engine) syncAll(ctx context.Context, userID string) (*Report, error) {
	report := &Report{Types: make(map[models.EntityType]TypeReport, len(models.SyncedTypes))}
	conflicted, err := e.conflictedIDs(ctx, userID)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range models.SyncedTypes {
		g.Go(func() error {
			r, err := e.syncType(gctx, userID, t, conflicted)
			mu.Lock()
			report.Types[t] = r
			mu.Unlock()
			return err
		})
	}
	return report, g.Wait()
}

func (e *Engine) conflictedIDs(ctx context.Context, userID string) (map[common.ID]bool, error) {
	cs, err := e.local.Conflicts(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[common.ID]bool, len(cs))
	for _, c := range cs {
		out[c.EntityID] = true
	}
	return out, nil
}

func (e *Engine) syncType(ctx context.Context, userID string, t models.EntityType, conflicted map[common.ID]bool) (TypeReport, error) {
	defer e.lock(userID + ":" + string(t))()

	var r TypeReport
	if err := e.push(ctx, userID, t, conflicted, &r); err != nil {
		return r, err
	}
	return r, e.pull(ctx, userID, t, &r)
}

// push sends pending rows in batches. Rows with an unresolved conflict wait
// for ResolveConflict.
func (e *Engine) push(ctx context.Context, userID string, t models.EntityType, conflicted map[common.ID]bool, r *TypeReport) error {
	pending, err := e.local.Pending(ctx, userID, t)
	if err != nil {
		return err
	}
	recs := pending[:0]
	for _, rec := range pending {
		if !conflicted[rec.ID] {
			recs = append(recs, rec)
		}
	}

	for start := 0; start < len(recs); start += e.BatchSize {
		batch := recs[start:min(start+e.BatchSize, len(recs))]
		now := timex.Stamp(e.clock.Now())
		resp, err := e.remote.Push(ctx, models.PushRequest{Type: t, Entities: batch, ClientTimestamp: now})
		if err != nil {
			return err
		}
		if err := e.local.CompletePush(ctx, userID, t, batch, resp, now); err != nil {
			return err
		}
		r.Pushed += len(batch)
		r.Accepted += len(resp.Accepted)
		r.Conflicts += len(resp.Conflicts)
		for _, c := range resp.Conflicts {
			e.logger.Info(ctx, "push conflict", "type", t, "id", c.EntityID, "message", c.Message)
		}
	}
	return nil
}

// pull fetches pages until the server reports no more. The watermark moves
// only after every page is applied, so an interrupted pull restarts from
// the previous watermark.
func (e *Engine) pull(ctx context.Context, userID string, t models.EntityType, r *TypeReport) error {
	since, err := e.local.Watermark(ctx, userID, t)
	if err != nil {
		return err
	}
	cursor := since
	for {
		resp, err := e.remote.Pull(ctx, models.PullRequest{Type: t, Since: cursor, Limit: e.PageSize})
		if err != nil {
			return err
		}
		n, err := e.local.ApplyRemote(ctx, userID, resp.Entities, timex.Stamp(e.clock.Now()))
		if err != nil {
			return err
		}
		r.Pulled += len(resp.Entities)
		r.Applied += n

		ts := resp.ServerTimestamp
		cursor = &ts
		if !resp.HasMore {
			break
		}
		if len(resp.Entities) == 0 {
			e.logger.Warn(ctx, "empty page with more pending", "type", t)
			break
		}
	}
	if cursor.IsZero() {
		return nil
	}
	return e.local.SetWatermark(ctx, userID, t, *cursor)
}

// Status derives the client sync state. SYNCING wins over OFFLINE, then
// CONFLICT, then PENDING. SYNCED needs a completed sync with no failed
// attempt after it.
func (e *Engine) Status(ctx context.Context, userID string) (*models.SyncStatus, error) {
	pending, conflicts, err := e.local.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	last, err := e.local.LastSync(ctx, userID)
	if err != nil {
		return nil, err
	}
	failed, err := e.local.LastFailure(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &models.SyncStatus{Pending: pending, Conflicts: conflicts, LastSyncAt: last, LastFailedAt: failed}
	switch {
	case e.syncing.Load() > 0:
		st.State = models.SyncStateSyncing
	case !e.online.Load():
		st.State = models.SyncStateOffline
	case conflicts > 0:
		st.State = models.SyncStateConflict
	case pending > 0, last == nil, failed != nil:
		// not reconciled with the server since the last change or failure
		st.State = models.SyncStatePending
	default:
		st.State = models.SyncStateSynced
	}
	return st, nil
}

func (e *Engine) Conflicts(ctx context.Context, userID string) ([]models.LocalConflict, error) {
	return e.local.Conflicts(ctx, userID)
}

// ResolveConflict settles a conflict. KeepLocal re-bases the local row so the
// next sync overwrites the server; KeepRemote takes the pulled server copy.
func (e *Engine) ResolveConflict(ctx context.Context, userID string, t models.EntityType, id common.ID, res Resolution) error {
	defer e.lock(userID + ":" + string(t))()
	if err := e.local.ResolveConflict(ctx, userID, t, id, res == KeepLocal, timex.Stamp(e.clock.Now())); err != nil {
		return err
	}
	e.logger.Info(ctx, "conflict resolved", "type", t, "id", id, "keepLocal", res == KeepLocal)
	return nil
}

// Probe pings the server once and records the outcome.
func (e *Engine) Probe(ctx context.Context) bool {
	err := e.remote.Ping(ctx)
	e.setOnline(ctx, err == nil)
	return err == nil
}

// WatchConnectivity pings the server every interval until ctx is done.
func (e *Engine) WatchConnectivity(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			e.Probe(pctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
