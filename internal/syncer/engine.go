// Package syncer reconciles the local event log with a remote event
// table.
//
// The local log is authoritative and fully usable offline; sync never
// deletes local events, and a failed round trip leaves local state
// untouched apart from the failure bookkeeping. Merging is idempotent
// on the client idempotency key, so re-delivered rows and concurrent
// local appends during an in-flight pull can neither be lost nor
// duplicated. A second sync while one is outstanding is rejected, not
// interleaved; likewise a full log replace.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/grove/internal/event"
	"github.com/roach88/grove/internal/eventlog"
)

// Named failure reasons. Configuration absence is reported through
// these before any network traffic; they never alter the local log.
var (
	ErrNotAuthenticated    = errors.New("not_authenticated")
	ErrRemoteNotConfigured = errors.New("remote_not_configured")
	ErrSyncInFlight        = errors.New("sync_in_flight")
	ErrReplaceDuringSync   = errors.New("replace_during_sync")
)

// Result summarizes a completed sync round trip.
type Result struct {
	Pulled        int
	Pushed        int
	LastConfirmed time.Time
}

// Engine owns all sync state: status, failure bookkeeping, the
// last-confirmed remote timestamp, the pending-upload set, and the
// subscriber list. One instance per store; nothing is ambient.
type Engine struct {
	mu sync.Mutex

	store   *eventlog.Store
	remote  Remote
	pending *PendingSet
	userID  string
	now     func() time.Time

	status        Status
	failures      int
	lastError     string
	lastFailureAt time.Time
	lastConfirmed time.Time
	inFlight      bool

	subs    map[int]func(Metadata)
	nextSub int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the wall clock, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a sync engine over the given store. remote may be
// nil (sync calls fail with ErrRemoteNotConfigured) and userID may be
// empty (ErrNotAuthenticated); both keep the engine usable offline.
func NewEngine(store *eventlog.Store, remote Remote, pending *PendingSet, userID string, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		remote:  remote,
		pending: pending,
		userID:  userID,
		now:     time.Now,
		status:  StatusIdle,
		subs:    make(map[int]func(Metadata)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Append records a local event: appended to the log and tracked as
// pending upload until a sync confirms it remote.
func (e *Engine) Append(ev event.Event) bool {
	if !e.store.Append(ev) {
		return false
	}
	e.notifyIfChanged(func() { e.pending.Add(ev.ClientID) })
	return true
}

// ReplaceLog atomically replaces the local log, e.g. from an imported
// document. Rejected while a sync merge is outstanding.
func (e *Engine) ReplaceLog(events []event.Event) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrReplaceDuringSync
	}
	e.mu.Unlock()

	e.store.ReplaceAll(events)
	return nil
}

// Metadata returns the current sync metadata.
func (e *Engine) Metadata() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metadataLocked()
}

func (e *Engine) metadataLocked() Metadata {
	return Metadata{
		Status:              e.status,
		ConsecutiveFailures: e.failures,
		LastError:           e.lastError,
		LastFailureAt:       e.lastFailureAt,
		LastConfirmed:       e.lastConfirmed,
		PendingCount:        e.pending.Count(),
	}
}

// Subscribe registers a listener for metadata changes. The listener
// receives one immediate synchronous callback with current state. The
// returned unsubscribe function is idempotent and stops only this
// listener.
func (e *Engine) Subscribe(fn func(Metadata)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	meta := e.metadataLocked()
	e.mu.Unlock()

	fn(meta)

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// notifyIfChanged runs mutate and notifies subscribers only if the
// visible metadata actually changed. A no-op failure reset therefore
// emits nothing.
func (e *Engine) notifyIfChanged(mutate func()) {
	e.mu.Lock()
	before := e.metadataLocked()
	mutate()
	after := e.metadataLocked()
	if before == after {
		e.mu.Unlock()
		return
	}
	fns := make([]func(Metadata), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}

// SmartSync pulls remote events newer than the last confirmed
// timestamp, merges them into the local log, and pushes pending
// uploads. Fails immediately with a named reason when not
// authenticated or no remote is configured.
func (e *Engine) SmartSync(ctx context.Context) (Result, error) {
	since, err := e.begin()
	if err != nil {
		return Result{}, err
	}

	res, err := e.roundTrip(ctx, since, false)
	e.finish(res, err)
	return res, err
}

// ForceFullSync ignores the last-confirmed timestamp, re-pulls
// everything, and rebuilds the local log with replace semantics at the
// merge step so nothing is duplicated.
func (e *Engine) ForceFullSync(ctx context.Context) (Result, error) {
	if _, err := e.begin(); err != nil {
		return Result{}, err
	}

	res, err := e.roundTrip(ctx, time.Time{}, true)
	e.finish(res, err)
	return res, err
}

// begin validates configuration, claims the in-flight slot, and flips
// status to syncing. Returns the pull lower bound.
func (e *Engine) begin() (time.Time, error) {
	e.mu.Lock()
	switch {
	case e.userID == "":
		e.mu.Unlock()
		return time.Time{}, ErrNotAuthenticated
	case e.remote == nil:
		e.mu.Unlock()
		return time.Time{}, ErrRemoteNotConfigured
	case e.inFlight:
		e.mu.Unlock()
		return time.Time{}, ErrSyncInFlight
	}
	e.inFlight = true
	since := e.lastConfirmed
	e.mu.Unlock()

	e.notifyIfChanged(func() { e.status = StatusSyncing })
	return since, nil
}

// finish releases the in-flight slot and records the outcome.
func (e *Engine) finish(res Result, err error) {
	e.notifyIfChanged(func() {
		e.inFlight = false
		if err != nil {
			e.failures++
			e.lastError = err.Error()
			e.lastFailureAt = e.now()
			e.status = StatusError
			return
		}
		e.failures = 0
		e.lastError = ""
		e.status = StatusSuccess
		if !res.LastConfirmed.IsZero() {
			e.lastConfirmed = res.LastConfirmed
		}
	})
}

// roundTrip performs pull, merge, and push. With replace=true the
// merge rebuilds the log instead of appending.
func (e *Engine) roundTrip(ctx context.Context, since time.Time, replace bool) (Result, error) {
	rows, err := e.remote.Select(ctx, e.userID, since)
	if err != nil {
		return Result{}, fmt.Errorf("pull: %w", err)
	}

	var res Result
	res.Pulled = len(rows)
	// The batch is ordered, so the confirmed watermark is the tail
	// element. Zero rows leave the watermark untouched.
	if len(rows) > 0 {
		res.LastConfirmed = rows[len(rows)-1].CreatedAt
	}

	if replace {
		e.mergeReplace(rows)
	} else {
		e.mergeAppend(rows)
	}

	pushed, err := e.pushPending(ctx)
	res.Pushed = pushed
	if err != nil {
		return res, fmt.Errorf("push: %w", err)
	}

	return res, nil
}

// mergeAppend folds pulled rows into the log through Append; rows the
// log already contains (by idempotency key) are no-ops.
func (e *Engine) mergeAppend(rows []Row) {
	for _, row := range rows {
		ev, ok := decodeRow(row)
		if !ok {
			continue
		}
		if e.store.ContainsClientID(ev.ClientID) {
			continue
		}
		e.store.Append(ev)
	}
}

// mergeReplace installs the remote log wholesale, then re-appends any
// local events the remote does not know about yet.
func (e *Engine) mergeReplace(rows []Row) {
	remoteIDs := make(map[string]bool, len(rows))
	merged := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		ev, ok := decodeRow(row)
		if !ok {
			continue
		}
		merged = append(merged, ev)
		if ev.ClientID != "" {
			remoteIDs[ev.ClientID] = true
		}
	}

	for _, ev := range e.store.ExportAll() {
		if ev.ClientID != "" && remoteIDs[ev.ClientID] {
			continue
		}
		merged = append(merged, ev)
	}

	e.store.ReplaceAll(merged)
}

// pushPending uploads every pending local event. Confirmed ids are
// removed from the pending set; ids with no backing event are stale
// and dropped.
func (e *Engine) pushPending(ctx context.Context) (int, error) {
	ids := e.pending.List()
	if len(ids) == 0 {
		return 0, nil
	}

	byClientID := make(map[string]event.Event)
	for _, ev := range e.store.ExportAll() {
		if ev.ClientID != "" {
			byClientID[ev.ClientID] = ev
		}
	}

	pushed := 0
	for _, id := range ids {
		ev, ok := byClientID[id]
		if !ok {
			slog.Debug("dropping stale pending id", "client_id", id)
			e.pending.Remove(id)
			continue
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			return pushed, fmt.Errorf("marshal pending event: %w", err)
		}

		row := Row{
			ID:              uuid.Must(uuid.NewV7()).String(),
			UserID:          e.userID,
			Type:            string(ev.Type),
			Payload:         payload,
			ClientID:        ev.ClientID,
			ClientTimestamp: ev.Timestamp,
			CreatedAt:       e.now(),
		}
		if err := e.remote.Insert(ctx, row); err != nil {
			return pushed, err
		}
		e.pending.Remove(id)
		pushed++
	}

	return pushed, nil
}

// decodeRow parses a remote row's payload. Undecodable rows are
// skipped rather than failing the merge.
func decodeRow(row Row) (event.Event, bool) {
	var ev event.Event
	if err := json.Unmarshal(row.Payload, &ev); err != nil {
		slog.Debug("skipping undecodable remote row", "id", row.ID, "error", err)
		return event.Event{}, false
	}
	if ev.ClientID == "" {
		ev.ClientID = row.ClientID
	}
	return ev, true
}
