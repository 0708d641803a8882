package compaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
)

func TestHorizontalPolicyThresholds(t *testing.T) {
	p := HorizontalPolicy{MaxDeltaFiles: 3, MaxDeltaBytes: 1000}

	assert.False(t, p.ShouldCompact(delta.Stats{Files: 2, Bytes: 10}))
	assert.True(t, p.ShouldCompact(delta.Stats{Files: 3, Bytes: 10}))
	assert.True(t, p.ShouldCompact(delta.Stats{Files: 1, Bytes: 1000}))

	// Zero value falls back to defaults.
	var dflt HorizontalPolicy
	assert.False(t, dflt.ShouldCompact(delta.Stats{Files: DefaultMaxDeltaFiles - 1}))
	assert.True(t, dflt.ShouldCompact(delta.Stats{Files: DefaultMaxDeltaFiles}))
}

func setupTable(t *testing.T) (*ledger.Store, *delta.Store, blobstore.BlobStore) {
	t.Helper()
	mem := blobstore.NewMemoryStore()
	return ledger.NewStore(mem, nil), delta.NewStore(mem, nil), mem
}

func TestTriggerCandidates(t *testing.T) {
	ctx := context.Background()
	ls, ds, mem := setupTable(t)

	recs := []ledger.SegmentRecord{
		{ID: "0", Status: ledger.StatusMarkedForUpdate, RowCount: 100},
		{ID: "1", Status: ledger.StatusMarkedForUpdate, RowCount: 100},
		{ID: "2", Status: ledger.StatusSuccess, RowCount: 100},
	}
	for i := range recs[:2] {
		recs[i].SetUpdateDelta(model.Timestamp(100+i), "tableupdatestatus-x")
	}
	_, err := ls.Commit(ctx, recs, nil)
	require.NoError(t, err)

	// Segment 0 accumulates two deltas, segment 1 only one.
	for i, ts := range []model.Timestamp{100, 150} {
		name := delta.DeleteDeltaFileName("0", "b0", ts)
		require.NoError(t, delta.WriteTombstones(ctx, mem, name, roaring.BitmapOf(uint32(i))))
	}
	name := delta.DeleteDeltaFileName("1", "b0", 101)
	require.NoError(t, delta.WriteTombstones(ctx, mem, name, roaring.BitmapOf(9)))

	trig := NewTrigger(HorizontalPolicy{MaxDeltaFiles: 2}, ls, ds)
	got, err := trig.Candidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.SegmentID{"0"}, got)
}

func TestSchedulerCoalescesRequests(t *testing.T) {
	ctx := context.Background()
	ls, ds, mem := setupTable(t)

	rec := ledger.SegmentRecord{ID: "0", Status: ledger.StatusMarkedForUpdate, RowCount: 10}
	rec.SetUpdateDelta(100, "tableupdatestatus-100")
	_, err := ls.Commit(ctx, []ledger.SegmentRecord{rec}, nil)
	require.NoError(t, err)

	name := delta.DeleteDeltaFileName("0", "b0", 100)
	require.NoError(t, delta.WriteTombstones(ctx, mem, name, roaring.BitmapOf(1)))

	var (
		mu    sync.Mutex
		runs  int
		seen  []model.SegmentID
		block = make(chan struct{})
	)
	compact := func(_ context.Context, segs []model.SegmentID) error {
		mu.Lock()
		runs++
		seen = append(seen, segs...)
		mu.Unlock()
		if runs == 1 {
			<-block
		}
		return nil
	}

	sched := NewScheduler(NewTrigger(HorizontalPolicy{MaxDeltaFiles: 1}, ls, ds), compact, nil)
	sched.Start()
	defer sched.Close()

	sched.Request()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	}, time.Second, 5*time.Millisecond)

	// A burst while the first run blocks collapses into one more run.
	for range 5 {
		sched.Request()
	}
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, runs)
	assert.Equal(t, []model.SegmentID{"0", "0"}, seen)
	mu.Unlock()
}

func TestSchedulerCloseIdempotent(t *testing.T) {
	ls, ds, _ := setupTable(t)
	sched := NewScheduler(NewTrigger(nil, ls, ds), nil, nil)
	sched.Start()
	sched.Start()
	sched.Close()
	sched.Close()
}
