// Package delta implements the update-delta ledger: immutable delta
// files carrying tombstone bitmaps or updated values for single blocks,
// and the per-transaction update-status documents that map a
// transaction timestamp to the blocks it touched.
//
// Delta files are named deterministically from (segment, block,
// transaction timestamp) and are never edited after creation; MVCC
// visibility falls out of comparing a read timestamp against the
// timestamps baked into the names.
package delta

import (
	"fmt"
	"strings"

	"github.com/strata-db/strata/model"
)

const (
	// DeleteDeltaExt marks tombstone-bitmap delta files.
	DeleteDeltaExt = ".deletedelta"
	// UpdateDeltaExt marks updated-values delta files.
	UpdateDeltaExt = ".updatedelta"

	updateStatusPrefix = "tableupdatestatus-"
)

// DeleteDeltaFileName names the tombstone delta of one block written by
// the transaction at ts.
func DeleteDeltaFileName(seg model.SegmentID, block model.BlockID, ts model.Timestamp) string {
	return fmt.Sprintf("%s_%s_%s%s", seg, block, ts, DeleteDeltaExt)
}

// UpdateDeltaFileName names the updated-values delta of one block.
func UpdateDeltaFileName(seg model.SegmentID, block model.BlockID, ts model.Timestamp) string {
	return fmt.Sprintf("%s_%s_%s%s", seg, block, ts, UpdateDeltaExt)
}

// UpdateStatusFileName names the update-status document of the
// transaction at ts.
func UpdateStatusFileName(ts model.Timestamp) string {
	return updateStatusPrefix + ts.String()
}

// BelongsToTransaction reports whether the blob name is an artifact of
// the transaction at ts (delta file or update-status document). Used by
// orphan cleanup.
func BelongsToTransaction(name string, ts model.Timestamp) bool {
	if name == UpdateStatusFileName(ts) {
		return true
	}
	suffix := "_" + ts.String()
	return strings.HasSuffix(name, suffix+DeleteDeltaExt) ||
		strings.HasSuffix(name, suffix+UpdateDeltaExt)
}
