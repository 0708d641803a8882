package delta

import (
	"context"
	"strings"

	"github.com/strata-db/strata/model"
)

// Stats summarizes the delta files accumulated against one segment.
type Stats struct {
	Files int
	Bytes int64
}

// SegmentStats counts the delta files of one segment and their total
// size. Both delete and update deltas count.
func (s *Store) SegmentStats(ctx context.Context, seg model.SegmentID) (Stats, error) {
	names, err := s.store.List(ctx, string(seg)+"_")
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, name := range names {
		if !strings.HasSuffix(name, DeleteDeltaExt) && !strings.HasSuffix(name, UpdateDeltaExt) {
			continue
		}
		b, err := s.store.Open(ctx, name)
		if err != nil {
			return Stats{}, err
		}
		st.Files++
		st.Bytes += b.Size()
		_ = b.Close()
	}

	return st, nil
}
