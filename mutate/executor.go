package mutate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/event"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/lock"
	"github.com/strata-db/strata/model"
	"github.com/strata-db/strata/txn"
)

// DefaultWorkers bounds the per-block delta computation fan-out.
const DefaultWorkers = 4

// Executor drives delete and update mutations against one table.
//
// Workers only write delta files; the single coordinating goroutine
// performs the ledger commit after all workers join, under the Metadata
// and Compaction locks.
type Executor struct {
	table  model.TableID
	ledger *ledger.Store
	deltas *delta.Store
	locks  *lock.Manager

	events     *event.Dispatcher
	logger     *slog.Logger
	workers    int
	commitHook func(segments []model.SegmentID)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers bounds the delta computation worker pool.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDispatcher sets the notification dispatcher.
func WithDispatcher(d *event.Dispatcher) Option {
	return func(e *Executor) {
		if d != nil {
			e.events = d
		}
	}
}

// WithCommitHook registers a callback invoked best-effort after a
// successful commit with the touched segments, outside any lock. Used
// to enqueue compaction evaluation.
func WithCommitHook(fn func(segments []model.SegmentID)) Option {
	return func(e *Executor) { e.commitHook = fn }
}

// NewExecutor builds a mutation executor for one table.
func NewExecutor(table model.TableID, ls *ledger.Store, ds *delta.Store, locks *lock.Manager, opts ...Option) *Executor {
	e := &Executor{
		table:   table,
		ledger:  ls,
		deltas:  ds,
		locks:   locks,
		events:  event.NewDispatcher(nil, nil, nil),
		logger:  slog.New(slog.DiscardHandler),
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delete tombstones the selected rows. Returns the number of rows newly
// deleted; rows already tombstoned by earlier transactions do not
// count. An empty selection returns (0, nil) without taking any lock or
// writing anything. On error the returned count is always 0 and the
// ledger is left at its pre-transaction state.
func (e *Executor) Delete(ctx context.Context, tx *txn.Transaction, sel *Selection) (int64, error) {
	return e.run(ctx, tx, sel, false)
}

// Update rewrites the selected rows via update-delta files. Returns the
// number of rows patched. Semantics otherwise match Delete.
func (e *Executor) Update(ctx context.Context, tx *txn.Transaction, sel *Selection) (int64, error) {
	return e.run(ctx, tx, sel, true)
}

// blockResult is one worker's output.
type blockResult struct {
	ref model.BlockRef

	deleteFile string
	updateFile string

	// affected is the number of rows this transaction newly touched.
	affected uint64
	// totalDeleted is the tombstone count of the block including prior
	// transactions.
	totalDeleted uint64
}

func (e *Executor) run(ctx context.Context, tx *txn.Transaction, sel *Selection, isUpdate bool) (int64, error) {
	if sel.Empty() {
		return 0, nil
	}
	ts := tx.StartTimestamp
	segments := sel.Segments()

	ev := event.Event{Table: e.table, TxnID: tx.ID, Timestamp: ts, Segments: segments}
	if err := e.events.PreMutate(ctx, ev); err != nil {
		return 0, err
	}

	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range segments {
		rec := snap.Get(id)
		if rec == nil || !rec.Visible() {
			return 0, fmt.Errorf("%w: segment %s is not mutable", ErrConcurrentConflict, id)
		}
	}

	// Tombstones committed before this transaction, for dedup and
	// full-delete detection.
	vis, err := e.deltas.VisibilityAt(ctx, snap, ts)
	if err != nil {
		return 0, err
	}

	results, err := e.writeDeltas(ctx, sel, ts, vis, isUpdate)
	if err != nil {
		e.cleanup(ctx, ts)
		return 0, fmt.Errorf("%w: %v", ErrPartialWrite, err)
	}

	statusFile, affected, dead, err := e.prepare(ctx, tx, snap, vis, results, isUpdate)
	if err != nil {
		e.cleanup(ctx, ts)
		return 0, err
	}

	if err := e.commit(ctx, segments, dead, ts, statusFile); err != nil {
		e.cleanup(ctx, ts)
		return 0, err
	}

	e.logger.Info("mutation committed",
		"table", e.table.Name,
		"txn", tx.ID,
		"kind", tx.Kind.String(),
		"segments", len(segments),
		"affected", affected)

	// Best-effort, outside the locks.
	if e.commitHook != nil {
		e.commitHook(segments)
	}
	e.events.PostMutate(ctx, ev)

	return int64(affected), nil
}

// writeDeltas fans the per-block delta writes out over the worker pool
// and joins all results. No ledger state is touched here.
func (e *Executor) writeDeltas(ctx context.Context, sel *Selection, ts model.Timestamp, vis *delta.Visibility, isUpdate bool) ([]blockResult, error) {
	results := make([]blockResult, len(sel.Blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range sel.Blocks {
		g.Go(func() error {
			res, err := e.writeBlock(gctx, &sel.Blocks[i], ts, vis, isUpdate)
			if err != nil {
				return fmt.Errorf("block %s: %w", sel.Blocks[i].Ref, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) writeBlock(ctx context.Context, bs *BlockSelection, ts model.Timestamp, vis *delta.Visibility, isUpdate bool) (blockResult, error) {
	res := blockResult{ref: bs.Ref}

	if isUpdate {
		if len(bs.Patches) == 0 {
			return res, nil
		}
		res.updateFile = delta.UpdateDeltaFileName(bs.Ref.Segment, bs.Ref.Block, ts)
		vd := &delta.ValuesDelta{Rows: bs.Patches}
		if err := delta.WriteValues(ctx, e.deltas.Blobs(), res.updateFile, vd); err != nil {
			return res, err
		}
		res.affected = uint64(len(bs.Patches))
		return res, nil
	}

	if len(bs.Rows) == 0 {
		return res, nil
	}
	rows := roaring.New()
	for _, r := range bs.Rows {
		rows.Add(uint32(r))
	}
	fresh := rows.Clone()
	prior := vis.Tombstones(bs.Ref)
	if prior != nil {
		fresh.AndNot(prior)
		rows.Or(prior)
	}

	res.deleteFile = delta.DeleteDeltaFileName(bs.Ref.Segment, bs.Ref.Block, ts)
	if err := delta.WriteTombstones(ctx, e.deltas.Blobs(), res.deleteFile, fresh); err != nil {
		return res, err
	}
	res.affected = fresh.GetCardinality()
	res.totalDeleted = rows.GetCardinality()
	return res, nil
}

// prepare writes the update-status document and aggregates the block
// results per segment: the total affected-row count and the segments
// whose every row is now tombstoned.
func (e *Executor) prepare(ctx context.Context, tx *txn.Transaction, snap *ledger.Snapshot, vis *delta.Visibility, results []blockResult, isUpdate bool) (string, uint64, []model.SegmentID, error) {
	us := &delta.UpdateStatus{Timestamp: tx.StartTimestamp, TxnID: tx.ID}

	var affected uint64
	deletedPerSeg := make(map[model.SegmentID]uint64)
	for _, res := range results {
		if res.deleteFile == "" && res.updateFile == "" {
			continue
		}
		affected += res.affected
		us.Blocks = append(us.Blocks, delta.BlockDelta{
			Segment:         res.ref.Segment,
			Block:           res.ref.Block,
			DeleteDeltaFile: res.deleteFile,
			UpdateDeltaFile: res.updateFile,
			DeletedRows:     res.totalDeleted,
		})
		deletedPerSeg[res.ref.Segment] += res.totalDeleted
	}

	statusFile, err := e.deltas.WriteStatus(ctx, us)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrPartialWrite, err)
	}

	var dead []model.SegmentID
	if !isUpdate {
		for seg, deleted := range deletedPerSeg {
			rec := snap.Get(seg)
			if rec == nil || rec.RowCount <= 0 {
				continue
			}
			// Prior tombstones of blocks this transaction touched are
			// already inside the per-block union counts; add only the
			// prior tombstones of untouched blocks.
			deleted += vis.DeletedInSegment(seg) - touchedPrior(vis, results, seg)
			if int64(deleted) >= rec.RowCount {
				dead = append(dead, seg)
			}
		}
		sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })
	}

	return statusFile, affected, dead, nil
}

// touchedPrior sums the pre-transaction tombstone counts of the
// segment's blocks this transaction wrote a delete delta for.
func touchedPrior(vis *delta.Visibility, results []blockResult, seg model.SegmentID) uint64 {
	var n uint64
	for _, res := range results {
		if res.ref.Segment == seg && res.deleteFile != "" {
			if bm := vis.Tombstones(res.ref); bm != nil {
				n += bm.GetCardinality()
			}
		}
	}
	return n
}

// commit performs the single guarded ledger write: touched segments go
// to Marked for Update, fully-deleted ones to Marked for Delete.
func (e *Executor) commit(ctx context.Context, segments, dead []model.SegmentID, ts model.Timestamp, statusFile string) error {
	meta, err := e.locks.Acquire(ctx, e.table, lock.Metadata())
	if err != nil {
		return err
	}
	handles := []*lock.Handle{meta}
	// Evaluated at return so the compaction handle appended below is
	// released too.
	defer func() { lock.ReleaseAll(handles) }()

	comp, err := e.locks.Acquire(ctx, e.table, lock.Compaction())
	if err != nil {
		if errors.Is(err, lock.ErrBusy) && len(dead) > 0 {
			// A running compaction may be rewriting a segment we are
			// about to declare dead.
			return fmt.Errorf("%w: compaction in flight while deleting segments: %v", ErrConcurrentConflict, err)
		}
		return err
	}
	handles = append(handles, comp)

	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return err
	}

	deadSet := make(map[model.SegmentID]bool, len(dead))
	for _, id := range dead {
		deadSet[id] = true
	}

	var updates []ledger.SegmentRecord
	for _, id := range segments {
		cur := snap.Get(id)
		if cur == nil || !cur.Visible() {
			return fmt.Errorf("%w: segment %s changed during mutation", ErrConcurrentConflict, id)
		}
		rec := *cur
		rec.SetUpdateDelta(ts, statusFile)
		if deadSet[id] {
			rec.Status = ledger.StatusMarkedForDelete
			rec.ModificationOrDeletionTimestamp = ts.String()
		} else {
			rec.Status = ledger.StatusMarkedForUpdate
		}
		updates = append(updates, rec)
	}

	if _, err := e.ledger.Commit(ctx, updates, nil); err != nil {
		return err
	}
	return nil
}

// cleanup removes this transaction's orphaned artifacts. Runs outside
// any lock, best-effort; a crash here leaves orphans for the
// garbage-collection pass.
func (e *Executor) cleanup(ctx context.Context, ts model.Timestamp) {
	if err := e.deltas.DeleteTransaction(ctx, ts); err != nil {
		e.logger.Warn("orphan cleanup failed", "table", e.table.Name, "txn_ts", ts, "error", err)
	}
}
