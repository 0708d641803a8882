package mutate

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
	"github.com/strata-db/strata/txn"
)

// writeOrphan simulates a crash after delta writes but before ledger
// commit: artifacts exist, nothing references them.
func writeOrphan(t *testing.T, ds *delta.Store, ts model.Timestamp) {
	t.Helper()
	ctx := context.Background()

	file := delta.DeleteDeltaFileName("0", "b", ts)
	require.NoError(t, delta.WriteTombstones(ctx, ds.Blobs(), file, roaring.BitmapOf(1, 2)))
	_, err := ds.WriteStatus(ctx, &delta.UpdateStatus{
		Timestamp: ts,
		TxnID:     "crashed",
		Blocks:    []delta.BlockDelta{{Segment: "0", Block: "b", DeleteDeltaFile: file, DeletedRows: 2}},
	})
	require.NoError(t, err)
}

func TestCleanerReclaimsOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedSegment(t, "0", 100)

	// One committed mutation, one orphan.
	_, err := f.exec.Delete(ctx, f.tm.Begin(txn.KindDelete),
		&Selection{Blocks: []BlockSelection{{Ref: model.BlockRef{Segment: "0", Block: "b"}, Rows: rowRange(0, 10)}}})
	require.NoError(t, err)

	orphanTS := f.tm.Begin(txn.KindDelete).StartTimestamp
	writeOrphan(t, f.ds, orphanTS)

	cleaner := NewCleaner(f.ls, f.ds, rate.NewLimiter(rate.Inf, 1), nil)

	removed, err := cleaner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The committed transaction's artifacts survive.
	snap, err := f.ls.Snapshot(ctx)
	require.NoError(t, err)
	rec := snap.Get("0")
	require.NotNil(t, rec)
	_, err = f.ds.ReadStatus(ctx, rec.UpdateStatusFileName)
	require.NoError(t, err)

	// The orphan is gone.
	_, err = f.ds.ReadStatus(ctx, delta.UpdateStatusFileName(orphanTS))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	_, err = f.ds.Blobs().Open(ctx, delta.DeleteDeltaFileName("0", "b", orphanTS))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCleanerIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedSegment(t, "0", 100)
	writeOrphan(t, f.ds, 12345)

	mem := f.blobs.(*blobstore.MemoryStore)
	cleaner := NewCleaner(f.ls, f.ds, nil, nil)

	removed, err := cleaner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	after := mem.Len()

	snapA, err := f.ls.Snapshot(ctx)
	require.NoError(t, err)

	removed, err = cleaner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, after, mem.Len())

	snapB, err := f.ls.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapA, snapB)
}

func TestCleanerEmptyTable(t *testing.T) {
	f := newFixture(t, nil)
	cleaner := NewCleaner(f.ls, f.ds, nil, nil)

	removed, err := cleaner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCommittedWindowDetection(t *testing.T) {
	rec := ledger.SegmentRecord{ID: "0", Status: ledger.StatusMarkedForUpdate}
	rec.SetUpdateDelta(100, "tableupdatestatus-100")
	rec.SetUpdateDelta(300, "tableupdatestatus-300")
	snap := &ledger.Snapshot{Records: []ledger.SegmentRecord{rec}}

	blocks := []delta.BlockDelta{{Segment: "0", Block: "b"}}

	assert.True(t, committed(snap, &delta.UpdateStatus{Timestamp: 100, Blocks: blocks}))
	assert.True(t, committed(snap, &delta.UpdateStatus{Timestamp: 200, Blocks: blocks}))
	assert.True(t, committed(snap, &delta.UpdateStatus{Timestamp: 300, Blocks: blocks}))
	assert.False(t, committed(snap, &delta.UpdateStatus{Timestamp: 99, Blocks: blocks}))
	assert.False(t, committed(snap, &delta.UpdateStatus{Timestamp: 301, Blocks: blocks}))

	// A document touching only unknown segments is an orphan.
	other := []delta.BlockDelta{{Segment: "9", Block: "b"}}
	assert.False(t, committed(snap, &delta.UpdateStatus{Timestamp: 200, Blocks: other}))
}
