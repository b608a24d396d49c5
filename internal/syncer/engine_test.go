package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grove/internal/event"
	"github.com/roach88/grove/internal/eventlog"
)

var engineNow = time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory Remote honoring the same contract as the
// SQLite implementation: ordered select, (user, client id) idempotent
// insert. Optional error injection per call.
type fakeRemote struct {
	mu   sync.Mutex
	rows []Row

	selectErr error
	insertErr error
}

func (f *fakeRemote) Select(_ context.Context, userID string, after time.Time) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}

	out := []Row{}
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		if !after.IsZero() && !row.CreatedAt.After(after) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeRemote) Insert(_ context.Context, row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}

	for _, existing := range f.rows {
		if existing.UserID == row.UserID && existing.ClientID == row.ClientID {
			return nil
		}
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func testEvent(clientID, sproutID string) event.Event {
	return event.Event{
		Type:      event.TypeSproutPlanted,
		Timestamp: time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
		ClientID:  clientID,
		Payload: event.SproutPlanted{
			SproutID:    sproutID,
			TwigID:      "branch-1-twig-1",
			Title:       "a goal",
			Season:      event.SeasonTwoWeeks,
			Environment: event.EnvFirm,
			SoilCost:    2,
		},
	}
}

func remoteRow(t *testing.T, clientID, sproutID string, createdAt time.Time) Row {
	t.Helper()
	ev := testEvent(clientID, sproutID)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return Row{
		ID:              "row-" + clientID,
		UserID:          "user-1",
		Type:            string(ev.Type),
		Payload:         payload,
		ClientID:        clientID,
		ClientTimestamp: ev.Timestamp,
		CreatedAt:       createdAt,
	}
}

func newTestEngine(remote Remote) (*Engine, *eventlog.Store, *PendingSet) {
	store := eventlog.OpenMemory(eventlog.WithClock(func() time.Time { return engineNow }))
	pending := NewPendingSet()
	engine := NewEngine(store, remote, pending, "user-1",
		WithEngineClock(func() time.Time { return engineNow }))
	return engine, store, pending
}

// TestEngine_AppendTracksPending tests that local appends enter the
// pending-upload set, and duplicate appends do not.
func TestEngine_AppendTracksPending(t *testing.T) {
	e, store, pending := newTestEngine(&fakeRemote{})

	assert.True(t, e.Append(testEvent("c-1", "sp-1")))
	assert.Equal(t, 1, store.Len())
	assert.True(t, pending.Contains("c-1"))

	assert.False(t, e.Append(testEvent("c-1", "sp-1")))
	assert.Equal(t, 1, pending.Count())
}

// TestEngine_NotAuthenticated tests the named failure before any
// traffic when no user is set.
func TestEngine_NotAuthenticated(t *testing.T) {
	store := eventlog.OpenMemory()
	e := NewEngine(store, &fakeRemote{}, NewPendingSet(), "")

	_, err := e.SmartSync(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StatusIdle, e.Metadata().Status, "config failure leaves status untouched")
}

// TestEngine_RemoteNotConfigured tests the named failure when no remote
// is wired.
func TestEngine_RemoteNotConfigured(t *testing.T) {
	store := eventlog.OpenMemory()
	e := NewEngine(store, nil, NewPendingSet(), "user-1")

	_, err := e.SmartSync(context.Background())
	require.ErrorIs(t, err, ErrRemoteNotConfigured)
}

// TestEngine_SmartSync_PullAndPush tests a full round trip: remote rows
// merge in, pending local events push out, watermark advances.
func TestEngine_SmartSync_PullAndPush(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{
		remoteRow(t, "r-1", "remote-sprout", engineNow.Add(-2*time.Hour)),
		remoteRow(t, "r-2", "remote-sprout-2", engineNow.Add(-1*time.Hour)),
	}

	e, store, pending := newTestEngine(remote)
	e.Append(testEvent("l-1", "local-sprout"))

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pulled)
	assert.Equal(t, 1, res.Pushed)
	assert.True(t, res.LastConfirmed.Equal(engineNow.Add(-1*time.Hour)))

	assert.Equal(t, 3, store.Len())
	assert.True(t, store.ContainsClientID("r-1"))
	assert.True(t, store.ContainsClientID("l-1"))
	assert.Equal(t, 0, pending.Count())
	assert.Equal(t, 3, remote.count())

	meta := e.Metadata()
	assert.Equal(t, StatusSuccess, meta.Status)
	assert.Equal(t, 0, meta.ConsecutiveFailures)
	assert.True(t, meta.LastConfirmed.Equal(res.LastConfirmed))
}

// TestEngine_SmartSync_ZeroRows tests that an empty pull leaves the
// watermark untouched.
func TestEngine_SmartSync_ZeroRows(t *testing.T) {
	e, _, _ := newTestEngine(&fakeRemote{})

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pulled)
	assert.True(t, res.LastConfirmed.IsZero())
	assert.True(t, e.Metadata().LastConfirmed.IsZero())
	assert.Equal(t, StatusSuccess, e.Metadata().Status)
}

// TestEngine_SmartSync_Incremental tests that the second sync pulls
// only rows newer than the confirmed watermark.
func TestEngine_SmartSync_Incremental(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{remoteRow(t, "r-1", "first", engineNow.Add(-2*time.Hour))}

	e, store, _ := newTestEngine(remote)

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Pulled)

	remote.mu.Lock()
	remote.rows = append(remote.rows, remoteRow(t, "r-2", "second", engineNow.Add(-1*time.Hour)))
	remote.mu.Unlock()

	res, err = e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled, "already-confirmed rows are not re-pulled")
	assert.Equal(t, 2, store.Len())
}

// TestEngine_SmartSync_DedupOnMerge tests that pulled rows the local
// log already holds are no-ops.
func TestEngine_SmartSync_DedupOnMerge(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{remoteRow(t, "c-1", "sp-1", engineNow.Add(-time.Hour))}

	e, store, pending := newTestEngine(remote)
	e.Append(testEvent("c-1", "sp-1"))

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, 1, store.Len(), "no duplicate from re-pulling our own event")
	assert.Equal(t, 0, pending.Count())
}

// TestEngine_ForceFullSync_Replace tests replace-merge semantics:
// remote order wins, local-only events survive at the tail.
func TestEngine_ForceFullSync_Replace(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{
		remoteRow(t, "r-1", "remote-a", engineNow.Add(-3*time.Hour)),
		remoteRow(t, "r-2", "remote-b", engineNow.Add(-2*time.Hour)),
	}

	e, store, _ := newTestEngine(remote)
	e.Append(testEvent("l-1", "local-only"))
	e.Append(testEvent("r-1", "remote-a")) // already known on both sides

	res, err := e.ForceFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pulled)

	log := store.ExportAll()
	require.Len(t, log, 3)
	assert.Equal(t, "r-1", log[0].ClientID)
	assert.Equal(t, "r-2", log[1].ClientID)
	assert.Equal(t, "l-1", log[2].ClientID)
}

// TestEngine_SyncInFlight tests rejection of a concurrent sync and of a
// log replace during one.
func TestEngine_SyncInFlight(t *testing.T) {
	release := make(chan struct{})
	remote := &blockingRemote{entered: make(chan struct{}), release: release}

	e, _, _ := newTestEngine(remote)

	done := make(chan error, 1)
	go func() {
		_, err := e.SmartSync(context.Background())
		done <- err
	}()

	<-remote.entered

	_, err := e.SmartSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInFlight)

	err = e.ReplaceLog([]event.Event{testEvent("x-1", "sp-x")})
	assert.ErrorIs(t, err, ErrReplaceDuringSync)

	close(release)
	require.NoError(t, <-done)

	// With the slot released both operations go through again.
	require.NoError(t, e.ReplaceLog(nil))
	_, err = e.SmartSync(context.Background())
	require.NoError(t, err)
}

// blockingRemote parks the first Select until released, to hold a sync
// in flight from a test.
type blockingRemote struct {
	fakeRemote
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Select(ctx context.Context, userID string, after time.Time) ([]Row, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.fakeRemote.Select(ctx, userID, after)
}

// TestEngine_FailureBookkeeping tests consecutive-failure counting and
// reset on the next success.
func TestEngine_FailureBookkeeping(t *testing.T) {
	remote := &fakeRemote{selectErr: errors.New("network down")}
	e, _, _ := newTestEngine(remote)

	for i := 1; i <= 3; i++ {
		_, err := e.SmartSync(context.Background())
		require.Error(t, err)

		meta := e.Metadata()
		assert.Equal(t, StatusError, meta.Status)
		assert.Equal(t, i, meta.ConsecutiveFailures)
		assert.Contains(t, meta.LastError, "network down")
		assert.True(t, meta.LastFailureAt.Equal(engineNow))
	}

	remote.mu.Lock()
	remote.selectErr = nil
	remote.mu.Unlock()

	_, err := e.SmartSync(context.Background())
	require.NoError(t, err)

	meta := e.Metadata()
	assert.Equal(t, StatusSuccess, meta.Status)
	assert.Equal(t, 0, meta.ConsecutiveFailures)
	assert.Empty(t, meta.LastError)
}

// TestEngine_PushFailureKeepsPending tests that events stay pending
// when the upload fails, and a later sync drains them.
func TestEngine_PushFailureKeepsPending(t *testing.T) {
	remote := &fakeRemote{insertErr: errors.New("write refused")}
	e, _, pending := newTestEngine(remote)
	e.Append(testEvent("l-1", "sp-1"))

	_, err := e.SmartSync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, pending.Count())
	assert.Equal(t, StatusError, e.Metadata().Status)

	remote.mu.Lock()
	remote.insertErr = nil
	remote.mu.Unlock()

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 0, pending.Count())
}

// TestEngine_StalePendingDropped tests that a pending id with no
// backing event is discarded instead of blocking the push.
func TestEngine_StalePendingDropped(t *testing.T) {
	e, _, pending := newTestEngine(&fakeRemote{})
	pending.Add("ghost-id")

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 0, pending.Count())
}

// TestEngine_Subscribe tests the immediate synchronous callback, change
// notifications, and idempotent unsubscribe.
func TestEngine_Subscribe(t *testing.T) {
	e, _, _ := newTestEngine(&fakeRemote{})

	var got []Metadata
	unsubscribe := e.Subscribe(func(m Metadata) { got = append(got, m) })

	require.Len(t, got, 1, "one immediate callback with current state")
	assert.Equal(t, StatusIdle, got[0].Status)

	e.Append(testEvent("c-1", "sp-1"))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].PendingCount)

	unsubscribe()
	unsubscribe() // second call is a no-op

	e.Append(testEvent("c-2", "sp-2"))
	assert.Len(t, got, 2, "no callbacks after unsubscribe")
}

// TestEngine_NoRedundantNotifications tests that mutations leaving the
// visible metadata unchanged emit nothing.
func TestEngine_NoRedundantNotifications(t *testing.T) {
	e, _, _ := newTestEngine(&fakeRemote{})

	calls := 0
	defer e.Subscribe(func(Metadata) { calls++ })()
	require.Equal(t, 1, calls)

	// Duplicate append: store rejects it before any metadata changes.
	e.Append(testEvent("c-1", "sp-1"))
	e.Append(testEvent("c-1", "sp-1"))
	assert.Equal(t, 2, calls)
}

// TestEngine_SyncNotifiesTransitions tests the status transitions a
// subscriber observes across one successful sync.
func TestEngine_SyncNotifiesTransitions(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{remoteRow(t, "r-1", "sp-1", engineNow.Add(-time.Hour))}

	e, _, _ := newTestEngine(remote)

	var statuses []Status
	defer e.Subscribe(func(m Metadata) { statuses = append(statuses, m.Status) })()

	_, err := e.SmartSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusIdle, StatusSyncing, StatusSuccess}, statuses)
}

// TestEngine_ReplaceLog tests replacement outside a sync.
func TestEngine_ReplaceLog(t *testing.T) {
	e, store, _ := newTestEngine(&fakeRemote{})
	e.Append(testEvent("c-1", "sp-1"))

	require.NoError(t, e.ReplaceLog([]event.Event{testEvent("c-9", "sp-9")}))
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.ContainsClientID("c-9"))
}

// TestEngine_SkipsUndecodableRows tests that corrupt remote payloads
// are skipped without failing the merge.
func TestEngine_SkipsUndecodableRows(t *testing.T) {
	remote := &fakeRemote{}
	remote.rows = []Row{
		{
			ID:        "row-bad",
			UserID:    "user-1",
			Type:      "sprout_planted",
			Payload:   []byte("{truncated"),
			ClientID:  "bad-1",
			CreatedAt: engineNow.Add(-2 * time.Hour),
		},
		remoteRow(t, "r-1", "sp-1", engineNow.Add(-time.Hour)),
	}

	e, store, _ := newTestEngine(remote)

	res, err := e.SmartSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pulled)
	assert.Equal(t, 1, store.Len())
}
