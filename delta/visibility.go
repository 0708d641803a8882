package delta

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
)

// Visibility is the tombstone view of a table at one read timestamp:
// the union of delete deltas committed at or before that instant,
// grouped by block.
type Visibility struct {
	at         model.Timestamp
	tombstones map[model.BlockRef]*roaring.Bitmap
}

// At returns the read timestamp the view was built for.
func (v *Visibility) At() model.Timestamp { return v.at }

// IsDeleted reports whether the row is tombstoned as of the view's
// timestamp.
func (v *Visibility) IsDeleted(ref model.BlockRef, row model.RowID) bool {
	bm, ok := v.tombstones[ref]
	return ok && bm.Contains(uint32(row))
}

// Tombstones returns the tombstone bitmap of one block, or nil when the
// block has none.
func (v *Visibility) Tombstones(ref model.BlockRef) *roaring.Bitmap {
	return v.tombstones[ref]
}

// DeletedInSegment counts tombstoned rows across all blocks of a
// segment.
func (v *Visibility) DeletedInSegment(seg model.SegmentID) uint64 {
	var n uint64
	for ref, bm := range v.tombstones {
		if ref.Segment == seg {
			n += bm.GetCardinality()
		}
	}
	return n
}

// VisibilityAt builds the tombstone view for reads at the given
// timestamp. Only deltas committed through the ledger count: a status
// document is included when a visible segment record's update-delta
// window covers its timestamp and the document touches that segment.
// Deltas committed after at, and orphans of aborted transactions, are
// excluded.
func (s *Store) VisibilityAt(ctx context.Context, snap *ledger.Snapshot, at model.Timestamp) (*Visibility, error) {
	windows := make(map[model.SegmentID][2]model.Timestamp)
	for _, rec := range snap.Records {
		if !rec.Visible() || rec.UpdateDeltaEndTimestamp == "" {
			continue
		}
		start, err := ledger.DecodeTimestamp(rec.UpdateDeltaStartTimestamp)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", rec.ID, err)
		}
		end, err := ledger.DecodeTimestamp(rec.UpdateDeltaEndTimestamp)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", rec.ID, err)
		}
		windows[rec.ID] = [2]model.Timestamp{start, end}
	}

	v := &Visibility{at: at, tombstones: make(map[model.BlockRef]*roaring.Bitmap)}
	if len(windows) == 0 {
		return v, nil
	}

	names, err := s.ListStatus(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		us, err := s.ReadStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		if us.Timestamp > at {
			continue
		}
		for _, bd := range us.Blocks {
			if bd.DeleteDeltaFile == "" {
				continue
			}
			w, ok := windows[bd.Segment]
			if !ok || us.Timestamp < w[0] || us.Timestamp > w[1] {
				continue
			}
			bm, err := ReadTombstones(ctx, s.store, bd.DeleteDeltaFile)
			if err != nil {
				return nil, err
			}
			ref := model.BlockRef{Segment: bd.Segment, Block: bd.Block}
			if cur, ok := v.tombstones[ref]; ok {
				cur.Or(bm)
			} else {
				v.tombstones[ref] = bm
			}
		}
	}

	return v, nil
}
