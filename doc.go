// Package strata implements the transactional segment ledger and
// mutation-commit core of a columnar, segment-organized table store.
//
// A table is a collection of immutable segments. The ledger records
// which segments exist and their lifecycle state in a single JSON
// document that every mutation rewrites atomically: a new version is
// written first and a CURRENT pointer is swapped last, so readers
// always see a complete prior write and crash recovery needs no
// replay. Deletes and updates never touch base data files; they write
// timestamped delta files carrying tombstone bitmaps or rewritten
// values, and the read path filters rows by comparing its visibility
// timestamp against the delta commit timestamps (MVCC).
//
// Coordination across concurrent loads, mutations and compactions uses
// named advisory locks (metadata, compaction, per-segment) with bounded
// retry, so a busy lock surfaces as a recoverable error instead of an
// unbounded wait.
//
// # Quick start
//
//	tbl, err := strata.OpenLocal(model.TableID{Name: "orders", Path: "/data/orders"})
//	if err != nil {
//		panic(err)
//	}
//	defer tbl.Close()
//
//	// Load a segment.
//	h, err := tbl.BeginLoad(ctx, false)
//	if err != nil {
//		return err
//	}
//	if err := tbl.CommitLoad(ctx, h, fragments); err != nil {
//		tbl.AbortLoad(ctx, h)
//		return err
//	}
//
//	// Delete externally resolved rows.
//	affected, err := tbl.Delete(ctx, &mutate.Selection{Blocks: []mutate.BlockSelection{
//		{Ref: model.BlockRef{Segment: "0", Block: "part-0"}, Rows: rows},
//	}})
//
// Row selection is an input: strata never evaluates predicates. Query
// planning, columnar encoding and the physical compaction merge live
// outside this module.
package strata
