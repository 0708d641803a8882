// Package mutate orchestrates delete and update mutations: per-block
// delta computation fanned out over a bounded worker pool, joined into
// a single guarded ledger commit. It consumes externally resolved row
// selections and never evaluates predicates itself.
package mutate

import (
	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/model"
)

// BlockSelection is the externally resolved set of rows one mutation
// touches within a single block.
type BlockSelection struct {
	Ref model.BlockRef

	// Rows to tombstone. Used by Delete.
	Rows []model.RowID

	// Patches carrying rewritten values. Used by Update.
	Patches []delta.PatchedRow
}

// Selection groups a mutation's row selection by block.
type Selection struct {
	Blocks []BlockSelection
}

// Empty reports whether the selection touches no rows at all.
func (s *Selection) Empty() bool {
	if s == nil {
		return true
	}
	for i := range s.Blocks {
		if len(s.Blocks[i].Rows) > 0 || len(s.Blocks[i].Patches) > 0 {
			return false
		}
	}
	return true
}

// Segments returns the distinct segment ids the selection touches, in
// first-seen order.
func (s *Selection) Segments() []model.SegmentID {
	seen := make(map[model.SegmentID]bool)
	var out []model.SegmentID
	for i := range s.Blocks {
		id := s.Blocks[i].Ref.Segment
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
