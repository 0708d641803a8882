package strata

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/compaction"
	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/event"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/loadcommit"
	"github.com/strata-db/strata/lock"
	"github.com/strata-db/strata/model"
	"github.com/strata-db/strata/mutate"
	"github.com/strata-db/strata/txn"
)

// metadataDirName is the table subdirectory holding ledger documents,
// segment descriptors and delta files for locally stored tables.
const metadataDirName = "Metadata"

// Table is the transactional surface of one table: delete and update
// mutations, load commits and orphan cleanup, all serialized through
// the table's advisory locks and committed through its segment ledger.
type Table struct {
	id    model.TableID
	blobs blobstore.BlobStore

	ledger *ledger.Store
	deltas *delta.Store
	locks  *lock.Manager
	txns   *txn.Manager

	exec    *mutate.Executor
	loads   *loadcommit.Coordinator
	cleaner *mutate.Cleaner
	sched   *compaction.Scheduler

	metrics MetricsCollector
	closed  atomic.Bool
}

// Open wires a Table over the given blob store. The store holds the
// ledger documents, segment descriptors and delta files; lock files
// live on the local file system under the table path.
func Open(id model.TableID, blobs blobstore.BlobStore, optFns ...Option) (*Table, error) {
	if id.Path == "" {
		return nil, fmt.Errorf("table %q: path must be set", id.Name)
	}
	o := applyOptions(optFns)

	t := &Table{
		id:      id,
		blobs:   blobs,
		ledger:  ledger.NewStore(blobs, o.logger),
		deltas:  delta.NewStore(blobs, o.logger),
		txns:    txn.NewManager(),
		metrics: o.metricsCollector,
	}

	var lockOpts []lock.Option
	lockOpts = append(lockOpts, lock.WithLogger(o.logger))
	if o.lockRetries > 0 {
		lockOpts = append(lockOpts, lock.WithRetries(o.lockRetries))
	}
	if o.lockRetryInterval > 0 {
		lockOpts = append(lockOpts, lock.WithRetryInterval(o.lockRetryInterval))
	}
	t.locks = lock.NewManager(nil, lockOpts...)

	dispatcher := event.NewDispatcher(o.logger, o.mutationListeners, o.statusListeners)

	trigger := compaction.NewTrigger(o.compactionPolicy, t.ledger, t.deltas)
	t.sched = compaction.NewScheduler(trigger, o.compactFn, o.logger)
	t.sched.Start()

	execOpts := []mutate.Option{
		mutate.WithLogger(o.logger),
		mutate.WithDispatcher(dispatcher),
		mutate.WithCommitHook(func([]model.SegmentID) { t.sched.Request() }),
	}
	if o.workers > 0 {
		execOpts = append(execOpts, mutate.WithWorkers(o.workers))
	}
	t.exec = mutate.NewExecutor(id, t.ledger, t.deltas, t.locks, execOpts...)

	t.loads = loadcommit.NewCoordinator(id, blobs, t.ledger, t.locks,
		loadcommit.WithLogger(o.logger),
		loadcommit.WithDispatcher(dispatcher))

	t.cleaner = mutate.NewCleaner(t.ledger, t.deltas, o.cleanupLimiter, o.logger)

	return t, nil
}

// OpenLocal opens a Table stored on the local file system, with all
// metadata under <path>/Metadata.
func OpenLocal(id model.TableID, optFns ...Option) (*Table, error) {
	if id.Path == "" {
		return nil, fmt.Errorf("table %q: path must be set", id.Name)
	}
	local, err := blobstore.NewLocalStore(nil, filepath.Join(id.Path, metadataDirName))
	if err != nil {
		return nil, err
	}
	return Open(id, local, optFns...)
}

// ID returns the table identity.
func (t *Table) ID() model.TableID { return t.id }

// Snapshot reads the current ledger state. Lock-free.
func (t *Table) Snapshot(ctx context.Context) (*ledger.Snapshot, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	return t.ledger.Snapshot(ctx)
}

// VisibilityAt builds the tombstone view for reads at the given
// timestamp.
func (t *Table) VisibilityAt(ctx context.Context, at model.Timestamp) (*delta.Visibility, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	snap, err := t.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return t.deltas.VisibilityAt(ctx, snap, at)
}

// Delete tombstones the externally resolved row selection in one
// transaction. Returns the number of rows newly deleted; an empty
// selection is a zero-effect success.
func (t *Table) Delete(ctx context.Context, sel *mutate.Selection) (int64, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	n, err := t.exec.Delete(ctx, t.txns.Begin(txn.KindDelete), sel)
	t.metrics.RecordDelete(n, time.Since(start), err)
	return n, err
}

// Update rewrites the selected rows through update-delta files in one
// transaction.
func (t *Table) Update(ctx context.Context, sel *mutate.Selection) (int64, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	n, err := t.exec.Update(ctx, t.txns.Begin(txn.KindUpdate), sel)
	t.metrics.RecordUpdate(n, time.Since(start), err)
	return n, err
}

// BeginLoad starts a load transaction: it registers an in-progress
// segment and takes its Segment lock. Finish with CommitLoad or
// AbortLoad.
func (t *Table) BeginLoad(ctx context.Context, overwrite bool) (*loadcommit.Handle, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	kind := txn.KindLoad
	if overwrite {
		kind = txn.KindOverwrite
	}
	return t.loads.Setup(ctx, t.txns.Begin(kind))
}

// CommitLoad publishes the load's merged fragments as one segment.
func (t *Table) CommitLoad(ctx context.Context, h *loadcommit.Handle, fragments []loadcommit.Fragment) error {
	if t.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	err := t.loads.Commit(ctx, h, fragments)
	t.metrics.RecordLoadCommit(time.Since(start), err)
	return err
}

// AbortLoad abandons a load. Idempotent.
func (t *Table) AbortLoad(ctx context.Context, h *loadcommit.Handle) error {
	if t.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	err := t.loads.Abort(ctx, h)
	t.metrics.RecordLoadCommit(time.Since(start), err)
	return err
}

// CleanupOrphans reclaims artifacts of transactions that never reached
// a ledger commit. Idempotent, takes no locks.
func (t *Table) CleanupOrphans(ctx context.Context) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	removed, err := t.cleaner.Run(ctx)
	t.metrics.RecordCleanup(removed, time.Since(start), err)
	return removed, err
}

// RequestCompaction asks the background scheduler for a compaction
// evaluation. Never blocks.
func (t *Table) RequestCompaction() {
	if !t.closed.Load() {
		t.sched.Request()
	}
}

// Close stops the background compaction scheduler. Further operations
// return ErrClosed. Idempotent.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.sched.Close()
	return nil
}
