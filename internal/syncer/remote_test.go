package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRemote(t *testing.T) *SQLiteRemote {
	t.Helper()
	r, err := OpenSQLiteRemote(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// TestSQLiteRemote_SelectOrdering tests created-at ordering with id as
// the tiebreaker, for both bounded and unbounded selects.
func TestSQLiteRemote_SelectOrdering(t *testing.T) {
	r := openTestRemote(t)
	ctx := context.Background()

	base := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	rows := []Row{
		{ID: "row-c", UserID: "u-1", Type: "t", Payload: []byte("{}"), ClientID: "c-3", ClientTimestamp: base, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "row-a", UserID: "u-1", Type: "t", Payload: []byte("{}"), ClientID: "c-1", ClientTimestamp: base, CreatedAt: base},
		{ID: "row-b", UserID: "u-1", Type: "t", Payload: []byte("{}"), ClientID: "c-2", ClientTimestamp: base, CreatedAt: base},
		{ID: "row-other", UserID: "u-2", Type: "t", Payload: []byte("{}"), ClientID: "c-9", ClientTimestamp: base, CreatedAt: base},
	}
	for _, row := range rows {
		require.NoError(t, r.Insert(ctx, row))
	}

	out, err := r.Select(ctx, "u-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "row-a", out[0].ID)
	assert.Equal(t, "row-b", out[1].ID)
	assert.Equal(t, "row-c", out[2].ID)

	// Bound is exclusive; equal timestamps are filtered out.
	bounded, err := r.Select(ctx, "u-1", base)
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "row-c", bounded[0].ID)
	assert.True(t, bounded[0].CreatedAt.Equal(base.Add(2*time.Hour)))
}

// TestSQLiteRemote_SelectEmpty tests that no matches yield an empty
// slice, not nil.
func TestSQLiteRemote_SelectEmpty(t *testing.T) {
	r := openTestRemote(t)

	out, err := r.Select(context.Background(), "nobody", time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

// TestSQLiteRemote_InsertIdempotent tests (user, client id) dedup.
func TestSQLiteRemote_InsertIdempotent(t *testing.T) {
	r := openTestRemote(t)
	ctx := context.Background()

	base := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	row := Row{ID: "row-1", UserID: "u-1", Type: "t", Payload: []byte("{}"), ClientID: "c-1", ClientTimestamp: base, CreatedAt: base}

	require.NoError(t, r.Insert(ctx, row))

	dup := row
	dup.ID = "row-2"
	require.NoError(t, r.Insert(ctx, dup), "same (user, client id) is a silent no-op")

	out, err := r.Select(ctx, "u-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	// A different user may reuse the same client id.
	other := row
	other.ID = "row-3"
	other.UserID = "u-2"
	require.NoError(t, r.Insert(ctx, other))
}

// TestSQLiteRemote_Delete tests removal by row id.
func TestSQLiteRemote_Delete(t *testing.T) {
	r := openTestRemote(t)
	ctx := context.Background()

	base := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.Insert(ctx, Row{ID: "row-1", UserID: "u-1", Type: "t", Payload: []byte("{}"), ClientID: "c-1", ClientTimestamp: base, CreatedAt: base}))

	require.NoError(t, r.Delete(ctx, "row-1"))
	require.NoError(t, r.Delete(ctx, "row-1"), "deleting an absent row is not an error")

	out, err := r.Select(ctx, "u-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestEngine_WithSQLiteRemote tests the engine end to end against the
// real SQLite remote: two devices sharing one remote converge.
func TestEngine_WithSQLiteRemote(t *testing.T) {
	remote := openTestRemote(t)

	deviceA, storeA, _ := newTestEngine(remote)
	deviceB, storeB, _ := newTestEngine(remote)

	deviceA.Append(testEvent("a-1", "sprout-from-a"))
	deviceB.Append(testEvent("b-1", "sprout-from-b"))

	_, err := deviceA.SmartSync(context.Background())
	require.NoError(t, err)
	_, err = deviceB.SmartSync(context.Background())
	require.NoError(t, err)
	_, err = deviceA.SmartSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, storeA.Len())
	assert.Equal(t, 2, storeB.Len())
	assert.True(t, storeA.ContainsClientID("b-1"))
	assert.True(t, storeB.ContainsClientID("a-1"))
}
