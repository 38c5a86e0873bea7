// Package syncer mirrors a List Store to a remote copy.
//
// A Reconciler moves through Disconnected, Authenticating, Syncing and
// Error. While syncing it merges remote batches into the store by id with
// the remote side winning, and pushes local mutations after a debounce
// window as per-item upserts and deletes plus a full snapshot and a
// per-user current document. Remote failures never reach the store: they
// are logged and surfaced through Status.
//
// Ids mutated locally since their last successful push are dirty, and ids
// deleted locally are tombstoned. Remote batches never overwrite a dirty id
// and never bring back a tombstoned one, so an edit waiting in the debounce
// window survives any number of remote reloads.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxxcyber/voicecart/internal/history"
	"github.com/foxxcyber/voicecart/internal/liststore"
	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
)

var (
	ErrNoRemote   = errors.New("remote sync is not configured")
	ErrNotSyncing = errors.New("sync is not active")
)

const (
	maxConcurrentWrites = 4
	historyResetTimeout = 10 * time.Second
)

// Remote is the persisted copy of a user's list
type Remote interface {
	// Subscribe delivers the current remote items and every later change
	// until unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, userID string, onItems func([]models.ListItem), onError func(error)) (unsubscribe func(), err error)
	Upsert(ctx context.Context, userID string, item models.ListItem) error
	Delete(ctx context.Context, userID, id string) error
	WriteSnapshot(ctx context.Context, userID string, items []models.ListItem, meta models.SnapshotMeta) error
	UpsertCurrent(ctx context.Context, userID string, items []models.ListItem) error
}

// HistoryRemote is implemented by remotes that also mirror the ledger
type HistoryRemote interface {
	LoadHistory(ctx context.Context, userID string) (map[string]models.HistoryAggregate, error)
	PushHistory(ctx context.Context, userID, key string, agg models.HistoryAggregate) error
	// ResetHistory drops mirrored aggregates not used after before
	ResetHistory(ctx context.Context, userID string, before time.Time) error
}

// Authenticator resolves the remote identity for a sync session
type Authenticator interface {
	Authenticate(ctx context.Context) (userID string, err error)
}

// StaticAuth authenticates as a fixed user id
type StaticAuth string

// Authenticate implements Authenticator
func (a StaticAuth) Authenticate(context.Context) (string, error) {
	if a == "" {
		return "", errors.New("no user id")
	}
	return string(a), nil
}

// Config configures a Reconciler
type Config struct {
	Store    *liststore.Store
	Ledger   *history.Ledger
	Remote   Remote
	Auth     Authenticator
	Debounce time.Duration
	Logger   *logger.Logger
	Now      func() time.Time
}

// Reconciler owns the sync lifecycle for one list
type Reconciler struct {
	store    *liststore.Store
	ledger   *history.Ledger
	remote   Remote
	hist     HistoryRemote
	auth     Authenticator
	debounce time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu           sync.Mutex
	state        models.SyncState
	userID       string
	lastErr      string
	lastPushedAt time.Time
	lastMergedAt time.Time
	cancel       context.CancelFunc
	ctx          context.Context
	unsubscribe  func()
	debouncer    *Debouncer
	epoch        uint64
	// awaitingFirst is set until the first remote batch of a sync session
	awaitingFirst bool

	// dirty maps ids changed locally since their last push to the change
	// sequence; tombstones maps locally deleted ids to whether the delete
	// has been pushed. Both are guarded by mu.
	dirty      map[string]uint64
	dirtySeq   uint64
	tombstones map[string]bool

	// flushMu serializes pushes and guards lastPushed
	flushMu    sync.Mutex
	lastPushed map[string]models.ListItem
}

// New creates a disconnected reconciler and hooks it to the store and ledger
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		remote:     cfg.Remote,
		auth:       cfg.Auth,
		debounce:   cfg.Debounce,
		log:        logger.OrNop(cfg.Logger).With("component", "sync"),
		now:        cfg.Now,
		state:      models.SyncDisconnected,
		dirty:      make(map[string]uint64),
		tombstones: make(map[string]bool),
		lastPushed: make(map[string]models.ListItem),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if hr, ok := cfg.Remote.(HistoryRemote); ok {
		r.hist = hr
	}

	r.store.Subscribe(r.onLocalChange)
	if r.ledger != nil {
		r.ledger.Subscribe(r.onHistoryEvent)
		r.ledger.SubscribeReset(r.onHistoryReset)
	}
	return r
}

// Start authenticates, subscribes to remote changes and enters Syncing.
// The session outlives ctx; it ends on Stop.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.remote == nil {
		return ErrNoRemote
	}

	r.mu.Lock()
	if r.state == models.SyncAuthenticating || r.ctx != nil {
		r.mu.Unlock()
		return nil
	}
	r.state = models.SyncAuthenticating
	r.lastErr = ""
	r.epoch++
	epoch := r.epoch
	r.awaitingFirst = true
	r.mu.Unlock()

	if r.auth == nil {
		return r.failStart(epoch, errors.New("no authenticator configured"))
	}
	userID, err := r.auth.Authenticate(ctx)
	if err != nil {
		return r.failStart(epoch, fmt.Errorf("authenticate: %w", err))
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	r.mergeRemoteHistory(ctx, userID)

	unsubscribe, err := r.remote.Subscribe(sessCtx, userID,
		func(items []models.ListItem) { r.onRemoteItems(epoch, items) },
		func(err error) { r.setError(epoch, err) },
	)
	if err != nil {
		cancel()
		return r.failStart(epoch, fmt.Errorf("subscribe: %w", err))
	}

	r.mu.Lock()
	if r.epoch != epoch {
		// Stopped while authenticating
		r.mu.Unlock()
		unsubscribe()
		cancel()
		return ErrNotSyncing
	}
	r.state = models.SyncSyncing
	r.userID = userID
	r.ctx = sessCtx
	r.cancel = cancel
	r.unsubscribe = unsubscribe
	r.debouncer = NewDebouncer(r.debounce, func() { r.flush(sessCtx, userID) })
	debouncer := r.debouncer
	r.mu.Unlock()

	r.log.Info("sync started", "user_id", userID)
	// Mirror whatever the list held before sync was switched on
	debouncer.Trigger()
	return nil
}

// Stop leaves Syncing, cancelling the subscription and any pending push
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.state == models.SyncDisconnected {
		r.mu.Unlock()
		return
	}
	r.epoch++
	r.state = models.SyncDisconnected
	cancel, unsubscribe, debouncer := r.cancel, r.unsubscribe, r.debouncer
	r.cancel, r.unsubscribe, r.debouncer, r.ctx = nil, nil, nil, nil
	userID := r.userID
	r.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	r.flushMu.Lock()
	r.lastPushed = make(map[string]models.ListItem)
	r.flushMu.Unlock()

	r.mu.Lock()
	for id, pushed := range r.tombstones {
		if pushed {
			delete(r.tombstones, id)
		}
	}
	r.mu.Unlock()

	r.log.Info("sync stopped", "user_id", userID)
}

// Flush pushes a pending debounced write immediately
func (r *Reconciler) Flush() {
	r.mu.Lock()
	debouncer := r.debouncer
	r.mu.Unlock()
	if debouncer != nil {
		debouncer.Flush()
	}
}

// Status reports the externally visible sync state
func (r *Reconciler) Status() models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := models.SyncStatus{
		State:     r.state,
		UserID:    r.userID,
		LastError: r.lastErr,
	}
	if !r.lastPushedAt.IsZero() {
		t := r.lastPushedAt
		st.LastPushedAt = &t
	}
	if !r.lastMergedAt.IsZero() {
		t := r.lastMergedAt
		st.LastMergedAt = &t
	}
	if r.debouncer != nil {
		st.PendingPush = r.debouncer.Pending()
	}
	return st
}

// Active reports whether local changes are being mirrored
func (r *Reconciler) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx != nil
}

// onLocalChange runs under the store lock and only schedules work
func (r *Reconciler) onLocalChange(items []models.ListItem, change models.ListChange) {
	if change.Origin != models.OriginLocal {
		return
	}
	r.mu.Lock()
	if change.Item != nil {
		r.markDirtyLocked(change.Item.ID, change.Kind == models.ChangeDeleted)
	} else {
		for _, it := range items {
			r.markDirtyLocked(it.ID, false)
		}
	}
	debouncer := r.debouncer
	r.mu.Unlock()
	if debouncer != nil {
		debouncer.Trigger()
	}
}

func (r *Reconciler) onHistoryEvent(key string, agg models.HistoryAggregate) {
	if r.hist == nil {
		return
	}
	r.mu.Lock()
	ctx, userID := r.ctx, r.userID
	r.mu.Unlock()
	if ctx == nil {
		return
	}

	go func() {
		if err := r.hist.PushHistory(ctx, userID, key, agg); err != nil && ctx.Err() == nil {
			r.log.Warn("history push failed", "name", key, "error", err)
		}
	}()
}

func (r *Reconciler) onHistoryReset(at time.Time) {
	if r.hist == nil {
		return
	}
	r.mu.Lock()
	ctx, userID := r.ctx, r.userID
	r.mu.Unlock()
	if ctx == nil {
		// The next Start clears the remote copy
		return
	}

	ctx, cancel := context.WithTimeout(ctx, historyResetTimeout)
	defer cancel()
	if err := r.hist.ResetHistory(ctx, userID, at); err != nil && ctx.Err() == nil {
		r.log.Warn("remote history reset failed", "user_id", userID, "error", err)
	}
}

// markDirtyLocked records a local change to id. r.mu must be held.
func (r *Reconciler) markDirtyLocked(id string, deleted bool) {
	r.dirtySeq++
	r.dirty[id] = r.dirtySeq
	if deleted {
		r.tombstones[id] = false
	}
}

// keepRemote runs under the store lock for every remote item of a batch
func (r *Reconciler) keepRemote(first bool) liststore.MergeFilter {
	return func(remote models.ListItem, local *models.ListItem) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.tombstones[remote.ID]; ok {
			return false
		}
		if _, ok := r.dirty[remote.ID]; ok {
			return false
		}
		// A cached edit made while offline is newer than the remote copy
		if first && local != nil && newerThan(*local, remote) {
			r.markDirtyLocked(local.ID, false)
			return false
		}
		return true
	}
}

func (r *Reconciler) onRemoteItems(epoch uint64, items []models.ListItem) {
	r.mu.Lock()
	if r.epoch != epoch || r.state == models.SyncDisconnected {
		r.mu.Unlock()
		return
	}
	first := r.awaitingFirst
	r.awaitingFirst = false
	r.mu.Unlock()

	res := r.store.MergeFiltered(items, r.keepRemote(first))

	// Applied items are what the remote holds; only later local edits differ
	r.flushMu.Lock()
	for _, it := range res.Applied {
		r.lastPushed[it.ID] = it
	}
	r.flushMu.Unlock()

	inBatch := make(map[string]bool, len(items))
	for _, it := range items {
		inBatch[it.ID] = true
	}

	r.mu.Lock()
	for _, id := range res.Removed {
		if _, ok := r.tombstones[id]; !ok {
			r.tombstones[id] = false
		}
	}
	// A tombstone is done once the remote copy no longer has the id
	for id := range r.tombstones {
		if _, dirty := r.dirty[id]; !dirty && !inBatch[id] {
			delete(r.tombstones, id)
		}
	}
	debouncer := r.debouncer
	if r.epoch == epoch {
		r.lastMergedAt = r.now()
		if r.state == models.SyncError {
			r.state = models.SyncSyncing
			r.lastErr = ""
		}
	}
	r.mu.Unlock()

	if (len(res.Folded) > 0 || len(res.Removed) > 0) && debouncer != nil {
		debouncer.Trigger()
	}
	if res.Change.Changed() {
		r.log.Debug("merged remote items", "count", len(res.Applied), "kept_local", len(res.Skipped))
	}
}

// flush writes the diff since the last successful push plus a snapshot and
// the current document. Failures leave lastPushed untouched so the next
// cycle retries the same diff.
func (r *Reconciler) flush(ctx context.Context, userID string) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// Read the dirty set before the items so a change landing in between
	// stays dirty
	r.mu.Lock()
	pending := make(map[string]uint64, len(r.dirty))
	for id, seq := range r.dirty {
		pending[id] = seq
	}
	var tombs []string
	for id, pushed := range r.tombstones {
		if !pushed {
			tombs = append(tombs, id)
		}
	}
	r.mu.Unlock()

	items := r.store.Items()
	var upserts []models.ListItem
	live := make(map[string]models.ListItem, len(items))
	for _, it := range items {
		live[it.ID] = it
		if prev, ok := r.lastPushed[it.ID]; !ok || prev != it {
			upserts = append(upserts, it)
		}
	}
	var deletes []string
	for id := range r.lastPushed {
		if _, ok := live[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	for _, id := range tombs {
		_, isLive := live[id]
		if _, known := r.lastPushed[id]; !isLive && !known {
			deletes = append(deletes, id)
		}
	}

	now := r.now()
	meta := models.SnapshotMeta{
		UserID:    userID,
		Reason:    models.SnapshotReasonAutosave,
		ItemCount: len(items),
		TakenAt:   now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWrites)
	for _, it := range upserts {
		it := it
		g.Go(func() error { return r.remote.Upsert(gctx, userID, it) })
	}
	for _, id := range deletes {
		id := id
		g.Go(func() error { return r.remote.Delete(gctx, userID, id) })
	}
	g.Go(func() error { return r.remote.WriteSnapshot(gctx, userID, items, meta) })
	g.Go(func() error { return r.remote.UpsertCurrent(gctx, userID, items) })

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("remote push failed", "user_id", userID, "error", err)
		r.mu.Lock()
		if r.ctx == ctx {
			r.state = models.SyncError
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
		return
	}

	r.lastPushed = live
	r.mu.Lock()
	for id, seq := range pending {
		if r.dirty[id] == seq {
			delete(r.dirty, id)
		}
	}
	for _, id := range tombs {
		if _, ok := r.tombstones[id]; ok {
			r.tombstones[id] = true
		}
	}
	if r.ctx == ctx {
		r.lastPushedAt = now
		if r.state == models.SyncError {
			r.state = models.SyncSyncing
			r.lastErr = ""
		}
	}
	r.mu.Unlock()
	r.log.Debug("pushed list", "user_id", userID, "upserts", len(upserts), "deletes", len(deletes))
}

func (r *Reconciler) mergeRemoteHistory(ctx context.Context, userID string) {
	if r.hist == nil || r.ledger == nil {
		return
	}
	if at := r.ledger.ResetAt(); !at.IsZero() {
		if err := r.hist.ResetHistory(ctx, userID, at); err != nil {
			r.log.Warn("remote history reset failed", "user_id", userID, "error", err)
		}
	}
	remote, err := r.hist.LoadHistory(ctx, userID)
	if err != nil {
		r.log.Warn("failed to load remote history", "user_id", userID, "error", err)
		return
	}
	if added := r.ledger.MergeMissing(remote); added > 0 {
		r.log.Info("merged remote history", "user_id", userID, "added", added)
	}
}

func (r *Reconciler) setError(epoch uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch || r.state == models.SyncDisconnected {
		return
	}
	r.state = models.SyncError
	r.lastErr = err.Error()
	r.log.Warn("remote subscription error", "error", err)
}

func (r *Reconciler) failStart(epoch uint64, err error) error {
	r.mu.Lock()
	if r.epoch == epoch {
		r.state = models.SyncError
		r.lastErr = err.Error()
	}
	r.mu.Unlock()
	r.log.Warn("sync start failed", "error", err)
	return err
}

// newerThan compares at the remote store's microsecond precision
func newerThan(local, remote models.ListItem) bool {
	return local.UpdatedAt.Truncate(time.Microsecond).After(remote.UpdatedAt.Truncate(time.Microsecond))
}
