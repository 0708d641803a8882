package delta

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
)

func TestDeltaFileNames(t *testing.T) {
	ts := model.Timestamp(1700000000123)
	assert.Equal(t, "0_blk-1_1700000000123.deletedelta", DeleteDeltaFileName("0", "blk-1", ts))
	assert.Equal(t, "0_blk-1_1700000000123.updatedelta", UpdateDeltaFileName("0", "blk-1", ts))
	assert.Equal(t, "tableupdatestatus-1700000000123", UpdateStatusFileName(ts))
}

func TestBelongsToTransaction(t *testing.T) {
	ts := model.Timestamp(42)
	assert.True(t, BelongsToTransaction("0_b_42.deletedelta", ts))
	assert.True(t, BelongsToTransaction("0_b_42.updatedelta", ts))
	assert.True(t, BelongsToTransaction("tableupdatestatus-42", ts))
	assert.False(t, BelongsToTransaction("0_b_421.deletedelta", ts))
	assert.False(t, BelongsToTransaction("0_b_42", ts))
	assert.False(t, BelongsToTransaction("tablestatus-000042", ts))
}

func TestTombstoneRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	rows := roaring.New()
	rows.AddRange(10, 40)
	rows.Add(999)

	require.NoError(t, WriteTombstones(ctx, store, "0_b_1.deletedelta", rows))

	got, err := ReadTombstones(ctx, store, "0_b_1.deletedelta")
	require.NoError(t, err)
	assert.Equal(t, uint64(31), got.GetCardinality())
	assert.True(t, got.Contains(10))
	assert.True(t, got.Contains(39))
	assert.True(t, got.Contains(999))
	assert.False(t, got.Contains(40))
}

func TestTombstoneMissing(t *testing.T) {
	_, err := ReadTombstones(context.Background(), blobstore.NewMemoryStore(), "nope")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestValuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	vd := &ValuesDelta{Rows: []PatchedRow{
		{Row: 3, Data: []byte("updated-a")},
		{Row: 17, Data: []byte("updated-b")},
	}}
	require.NoError(t, WriteValues(ctx, store, "0_b_1.updatedelta", vd))

	got, err := ReadValues(ctx, store, "0_b_1.updatedelta")
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, model.RowID(3), got.Rows[0].Row)
	assert.Equal(t, []byte("updated-b"), got.Rows[1].Data)
}

func TestStatusRoundTripAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore(), nil)

	us := &UpdateStatus{
		Timestamp: 100,
		TxnID:     "txn-a",
		Blocks: []BlockDelta{
			{Segment: "0", Block: "b0", DeleteDeltaFile: "0_b0_100.deletedelta", DeletedRows: 30},
		},
	}
	name, err := s.WriteStatus(ctx, us)
	require.NoError(t, err)
	assert.Equal(t, "tableupdatestatus-100", name)

	got, err := s.ReadStatus(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, us, got)

	names, err := s.ListStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)
}

func TestDeleteTransactionIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	s := NewStore(mem, nil)

	ts := model.Timestamp(500)
	bm := roaring.BitmapOf(1, 2)
	require.NoError(t, WriteTombstones(ctx, mem, DeleteDeltaFileName("0", "b0", ts), bm))
	require.NoError(t, WriteValues(ctx, mem, UpdateDeltaFileName("0", "b0", ts), &ValuesDelta{}))
	_, err := s.WriteStatus(ctx, &UpdateStatus{Timestamp: ts, TxnID: "t"})
	require.NoError(t, err)

	// Unrelated blobs survive.
	require.NoError(t, mem.Put(ctx, DeleteDeltaFileName("0", "b0", 501), []byte("x")))

	require.NoError(t, s.DeleteTransaction(ctx, ts))
	assert.Equal(t, 1, mem.Len())

	// A second pass finds nothing and succeeds.
	require.NoError(t, s.DeleteTransaction(ctx, ts))
	assert.Equal(t, 1, mem.Len())
}

// commitDelta wires a delete delta into the store and a ledger snapshot
// the way a committed mutation would.
func commitDelta(t *testing.T, s *Store, snap *ledger.Snapshot, seg model.SegmentID, block model.BlockID, ts model.Timestamp, rows ...uint32) {
	t.Helper()
	ctx := context.Background()

	file := DeleteDeltaFileName(seg, block, ts)
	require.NoError(t, WriteTombstones(ctx, s.Blobs(), file, roaring.BitmapOf(rows...)))
	_, err := s.WriteStatus(ctx, &UpdateStatus{
		Timestamp: ts,
		Blocks: []BlockDelta{
			{Segment: seg, Block: block, DeleteDeltaFile: file, DeletedRows: uint64(len(rows))},
		},
	})
	require.NoError(t, err)

	rec := snap.Get(seg)
	require.NotNil(t, rec)
	rec.Status = ledger.StatusMarkedForUpdate
	rec.SetUpdateDelta(ts, UpdateStatusFileName(ts))
}

func TestVisibilityAtTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore(), nil)

	snap := &ledger.Snapshot{Records: []ledger.SegmentRecord{
		{ID: "0", Status: ledger.StatusSuccess, RowCount: 100},
	}}

	commitDelta(t, s, snap, "0", "b0", 100, 1, 2, 3)
	commitDelta(t, s, snap, "0", "b0", 200, 4, 5)

	ref := model.BlockRef{Segment: "0", Block: "b0"}

	// Before the first commit nothing is deleted.
	v, err := s.VisibilityAt(ctx, snap, 99)
	require.NoError(t, err)
	assert.False(t, v.IsDeleted(ref, 1))
	assert.Zero(t, v.DeletedInSegment("0"))

	// At the first commit only its rows are gone.
	v, err = s.VisibilityAt(ctx, snap, 100)
	require.NoError(t, err)
	assert.True(t, v.IsDeleted(ref, 1))
	assert.False(t, v.IsDeleted(ref, 4))
	assert.Equal(t, uint64(3), v.DeletedInSegment("0"))

	// At or after the second commit both deltas apply.
	v, err = s.VisibilityAt(ctx, snap, 250)
	require.NoError(t, err)
	assert.True(t, v.IsDeleted(ref, 1))
	assert.True(t, v.IsDeleted(ref, 5))
	assert.Equal(t, uint64(5), v.DeletedInSegment("0"))
	assert.NotNil(t, v.Tombstones(ref))
}

func TestVisibilityIgnoresOrphans(t *testing.T) {
	ctx := context.Background()
	s := NewStore(blobstore.NewMemoryStore(), nil)

	snap := &ledger.Snapshot{Records: []ledger.SegmentRecord{
		{ID: "0", Status: ledger.StatusSuccess, RowCount: 100},
	}}
	commitDelta(t, s, snap, "0", "b0", 100, 1)

	// An aborted transaction left its artifacts behind but no ledger
	// record covers its timestamp.
	file := DeleteDeltaFileName("0", "b0", 300)
	require.NoError(t, WriteTombstones(ctx, s.Blobs(), file, roaring.BitmapOf(50)))
	_, err := s.WriteStatus(ctx, &UpdateStatus{
		Timestamp: 300,
		Blocks:    []BlockDelta{{Segment: "0", Block: "b0", DeleteDeltaFile: file, DeletedRows: 1}},
	})
	require.NoError(t, err)

	v, err := s.VisibilityAt(ctx, snap, 400)
	require.NoError(t, err)
	ref := model.BlockRef{Segment: "0", Block: "b0"}
	assert.True(t, v.IsDeleted(ref, 1))
	assert.False(t, v.IsDeleted(ref, 50))
}

func TestSegmentStats(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	s := NewStore(mem, nil)

	require.NoError(t, WriteTombstones(ctx, mem, DeleteDeltaFileName("0", "b0", 1), roaring.BitmapOf(1)))
	require.NoError(t, WriteValues(ctx, mem, UpdateDeltaFileName("0", "b0", 2), &ValuesDelta{}))
	require.NoError(t, WriteTombstones(ctx, mem, DeleteDeltaFileName("1", "b0", 3), roaring.BitmapOf(1)))

	st, err := s.SegmentStats(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Files)
	assert.Positive(t, st.Bytes)

	st, err = s.SegmentStats(ctx, "2")
	require.NoError(t, err)
	assert.Zero(t, st.Files)
}
