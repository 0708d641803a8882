package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/model"
)

func testTable(t *testing.T) model.TableID {
	t.Helper()
	return model.TableID{Name: "orders", Path: t.TempDir()}
}

func fastManager() *Manager {
	return NewManager(nil, WithRetries(2), WithRetryInterval(time.Millisecond))
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	h, err := m.Acquire(ctx, table, Metadata())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(table.Path, lockDirName, "meta.lock"))
	require.NoError(t, err)

	require.NoError(t, h.Release())
	_, err = os.Stat(filepath.Join(table.Path, lockDirName, "meta.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireBusy(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	h, err := m.Acquire(ctx, table, Metadata())
	require.NoError(t, err)
	defer h.Release()

	_, err = m.Acquire(ctx, table, Metadata())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAcquireRetriesUntilFree(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := NewManager(nil, WithRetries(50), WithRetryInterval(time.Millisecond))

	h, err := m.Acquire(ctx, table, Compaction())
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		h.Release()
	}()

	h2, err := m.Acquire(ctx, table, Compaction())
	require.NoError(t, err)
	h2.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	h, err := m.Acquire(ctx, table, Segment("42"))
	require.NoError(t, err)
	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
}

func TestSegmentLocksAreIndependent(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	h1, err := m.Acquire(ctx, table, Segment("1"))
	require.NoError(t, err)
	defer h1.Release()

	h2, err := m.Acquire(ctx, table, Segment("2"))
	require.NoError(t, err)
	defer h2.Release()

	_, err = m.Acquire(ctx, table, Segment("1"))
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAcquireAllOrdersAndRollsBack(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	// Hold Compaction so AcquireAll fails after taking Metadata.
	blocker, err := m.Acquire(ctx, table, Compaction())
	require.NoError(t, err)
	defer blocker.Release()

	_, err = m.AcquireAll(ctx, table, []Name{Compaction(), Metadata()})
	assert.ErrorIs(t, err, ErrBusy)

	// Metadata must have been released on the failure path.
	h, err := m.Acquire(ctx, table, Metadata())
	require.NoError(t, err)
	h.Release()
}

func TestAcquireAllSuccess(t *testing.T) {
	ctx := context.Background()
	table := testTable(t)
	m := fastManager()

	handles, err := m.AcquireAll(ctx, table, []Name{Segment("0"), Compaction(), Metadata()})
	require.NoError(t, err)
	require.Len(t, handles, 3)

	// Fixed global order regardless of input order.
	assert.Equal(t, UsageMetadata, handles[0].Name().Usage)
	assert.Equal(t, UsageCompaction, handles[1].Name().Usage)
	assert.Equal(t, UsageSegment, handles[2].Name().Usage)

	ReleaseAll(handles)
	ReleaseAll(handles) // idempotent
}

func TestAcquireHonorsContext(t *testing.T) {
	table := testTable(t)
	m := NewManager(nil, WithRetries(100), WithRetryInterval(10*time.Millisecond))

	h, err := m.Acquire(context.Background(), table, Metadata())
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, table, Metadata())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
