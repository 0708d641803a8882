package loadcommit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/event"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/lock"
	"github.com/strata-db/strata/model"
	"github.com/strata-db/strata/txn"
)

// Coordinator drives load setup, commit and abort for one table.
type Coordinator struct {
	table  model.TableID
	blobs  blobstore.BlobStore
	ledger *ledger.Store
	locks  *lock.Manager
	events *event.Dispatcher
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDispatcher sets the notification dispatcher.
func WithDispatcher(d *event.Dispatcher) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.events = d
		}
	}
}

// NewCoordinator builds a load commit coordinator for one table.
func NewCoordinator(table model.TableID, blobs blobstore.BlobStore, ls *ledger.Store, locks *lock.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		table:  table,
		blobs:  blobs,
		ledger: ls,
		locks:  locks,
		events: event.NewDispatcher(nil, nil, nil),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle tracks one in-flight load between Setup and Commit or Abort.
type Handle struct {
	Txn       *txn.Transaction
	SegmentID model.SegmentID

	segLock *lock.Handle

	mu   sync.Mutex
	done bool
	// Empty is set when Commit found zero bytes to publish and marked
	// the segment Failure instead.
	Empty bool
}

func (h *Handle) finish() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	return true
}

func (h *Handle) finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Setup registers a fresh in-progress segment record and takes the
// exclusive Segment lock for it, failing fast with lock.ErrBusy if
// another load already holds the id. The new id is not visible to
// reads, so the registration commit does not need the Metadata lock.
func (c *Coordinator) Setup(ctx context.Context, tx *txn.Transaction) (*Handle, error) {
	snap, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	id := snap.NextSegmentID()

	status := ledger.StatusInsertInProgress
	if tx.Kind == txn.KindOverwrite {
		status = ledger.StatusInsertOverwriteInProgress
	}
	rec := ledger.SegmentRecord{ID: id, Status: status}
	rec.SetLoadStartTime(tx.StartTimestamp)

	if _, err := c.ledger.Commit(ctx, []ledger.SegmentRecord{rec}, nil); err != nil {
		return nil, err
	}

	segLock, err := c.locks.Acquire(ctx, c.table, lock.Segment(id))
	if err != nil {
		// Roll the registration back before surfacing the busy.
		c.markFailed(ctx, id)
		return nil, fmt.Errorf("segment %s: %w", id, err)
	}

	c.logger.Info("load setup", "table", c.table.Name, "segment", id, "txn", tx.ID)
	return &Handle{Txn: tx, SegmentID: id, segLock: segLock}, nil
}

// Commit merges the per-task fragments and publishes the segment in one
// guarded ledger write. A zero-size non-overwrite load is recorded as
// Failure and returns nil with h.Empty set: no new data becomes
// visible and the call is a zero-effect success.
//
// For overwrite loads, every currently valid segment serving one of the
// new write's partitions is rewritten to drop those partitions; a
// segment left with no partitions goes to Marked for Delete. The new
// record, every rewrite and every drop land in the same ledger commit.
//
// A Commit that fails leaves the handle open: the caller must Abort to
// move the record to Failure and clean up partial artifacts.
func (c *Coordinator) Commit(ctx context.Context, h *Handle, fragments []Fragment) error {
	if h.finished() {
		return fmt.Errorf("load for segment %s already finished", h.SegmentID)
	}

	desc, totals := Merge(fragments)
	overwrite := h.Txn.Kind == txn.KindOverwrite

	if totals.DataSize == 0 && !overwrite {
		h.finish()
		h.Empty = true
		c.markFailed(ctx, h.SegmentID)
		h.segLock.Release()
		c.logger.Info("empty load recorded as no-op", "table", c.table.Name, "segment", h.SegmentID)
		return nil
	}

	descName, err := WriteDescriptor(ctx, c.blobs, h.SegmentID, h.Txn.StartTimestamp, desc)
	if err != nil {
		return err
	}

	meta, err := c.locks.Acquire(ctx, c.table, lock.Metadata())
	if err != nil {
		return err
	}
	defer meta.Release()

	snap, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return err
	}
	cur := snap.Get(h.SegmentID)
	if cur == nil || !cur.Status.InProgress() {
		return fmt.Errorf("segment %s lost its in-progress record", h.SegmentID)
	}

	rec := *cur
	rec.Status = ledger.StatusSuccess
	rec.SetSizes(totals.DataSize, totals.IndexSize)
	rec.RowCount = totals.RowCount
	rec.SegmentFile = descName
	rec.SetLoadEndTime(model.Now())

	updates := []ledger.SegmentRecord{rec}
	affected := []model.SegmentID{h.SegmentID}

	if overwrite {
		rewrites, err := c.overwriteRewrites(ctx, snap, desc.PartitionSpecs(), h.Txn.StartTimestamp)
		if err != nil {
			return err
		}
		updates = append(updates, rewrites...)
		for _, u := range rewrites {
			affected = append(affected, u.ID)
		}
	}

	ev := event.Event{Table: c.table, TxnID: h.Txn.ID, Timestamp: h.Txn.StartTimestamp, Segments: affected}
	if err := c.events.PreStatusUpdate(ctx, ev); err != nil {
		return err
	}

	if _, err := c.ledger.Commit(ctx, updates, nil); err != nil {
		return err
	}

	// The segment is published; the handle is spent even if a listener
	// complains below.
	h.finish()
	h.segLock.Release()

	c.logger.Info("load committed",
		"table", c.table.Name,
		"segment", h.SegmentID,
		"overwrite", overwrite,
		"data_size", totals.DataSize,
		"rows", totals.RowCount)

	// The ledger write is already durable; a listener failure here is
	// surfaced but cannot be rolled back.
	return c.events.PostStatusUpdate(ctx, ev)
}

// overwriteRewrites builds the record updates for every valid segment
// overlapping the overwritten partitions. All rewrites carry the
// overwrite transaction's start timestamp ts.
func (c *Coordinator) overwriteRewrites(ctx context.Context, snap *ledger.Snapshot, specs []model.Partition, ts model.Timestamp) ([]ledger.SegmentRecord, error) {
	var updates []ledger.SegmentRecord
	for _, old := range snap.ValidSegments() {
		if old.SegmentFile == "" {
			continue
		}
		oldDesc, err := ReadDescriptor(ctx, c.blobs, old.SegmentFile)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", old.ID, err)
		}
		if !oldDesc.Overlaps(specs) {
			continue
		}

		rec := old
		if oldDesc.DropPartitions(specs) {
			// Partitions remain: rewrite the descriptor under a fresh
			// generation id.
			name, err := WriteDescriptor(ctx, c.blobs, old.ID, ts, oldDesc)
			if err != nil {
				return nil, fmt.Errorf("rewrite segment %s: %w", old.ID, err)
			}
			rec.SegmentFile = name
			rec.ModificationOrDeletionTimestamp = ts.String()
		} else {
			rec.Status = ledger.StatusMarkedForDelete
			rec.ModificationOrDeletionTimestamp = ts.String()
		}
		updates = append(updates, rec)
	}
	return updates, nil
}

// Abort marks the load's record Failure, removes partial artifacts and
// releases the Segment lock. Idempotent, and safe after a Setup that
// only partially completed.
func (c *Coordinator) Abort(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if !h.finish() {
		return nil
	}
	if h.SegmentID != "" {
		c.markFailed(ctx, h.SegmentID)
		// Descriptor written by a commit attempt that failed later.
		name := descriptorFileName(h.SegmentID, h.Txn.StartTimestamp)
		if err := c.blobs.Delete(ctx, name); err != nil {
			c.logger.Warn("abort: descriptor cleanup failed", "segment", h.SegmentID, "error", err)
		}
	}
	if h.segLock != nil {
		if err := h.segLock.Release(); err != nil {
			return err
		}
	}
	c.logger.Info("load aborted", "table", c.table.Name, "segment", h.SegmentID)
	return nil
}

// markFailed moves an in-progress record to Failure, best-effort. An
// already-finished or missing record is left alone.
func (c *Coordinator) markFailed(ctx context.Context, id model.SegmentID) {
	meta, err := c.locks.Acquire(ctx, c.table, lock.Metadata())
	if err != nil {
		c.logger.Warn("mark failed: metadata lock", "segment", id, "error", err)
		return
	}
	defer meta.Release()

	snap, err := c.ledger.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("mark failed: snapshot", "segment", id, "error", err)
		return
	}
	cur := snap.Get(id)
	if cur == nil || !cur.Status.InProgress() {
		return
	}
	rec := *cur
	rec.Status = ledger.StatusFailure
	if _, err := c.ledger.Commit(ctx, []ledger.SegmentRecord{rec}, nil); err != nil {
		c.logger.Warn("mark failed: commit", "segment", id, "error", err)
	}
}
