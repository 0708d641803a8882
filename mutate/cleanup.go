package mutate

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
)

// Cleaner reclaims orphaned mutation artifacts: delta files and
// update-status documents written by transactions that never reached a
// ledger commit, typically because the process crashed between lock
// release and cleanup. Runs are idempotent and take no locks; a
// document is an orphan only once no segment record's update-delta
// window covers its timestamp, so anything a reader could still
// reference stays put.
type Cleaner struct {
	ledger  *ledger.Store
	deltas  *delta.Store
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCleaner builds a Cleaner. limiter throttles blob deletions and may
// be nil for unthrottled runs.
func NewCleaner(ls *ledger.Store, ds *delta.Store, limiter *rate.Limiter, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{ledger: ls, deltas: ds, limiter: limiter, logger: logger}
}

// Run scans all update-status documents and removes the artifacts of
// uncommitted transactions. Returns the number of transactions
// reclaimed.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	snap, err := c.ledger.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	names, err := c.deltas.ListStatus(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		us, err := c.deltas.ReadStatus(ctx, name)
		if err != nil {
			return removed, err
		}
		if committed(snap, us) {
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return removed, err
			}
		}
		if err := c.deltas.DeleteTransaction(ctx, us.Timestamp); err != nil {
			return removed, err
		}
		c.logger.Info("reclaimed orphaned mutation artifacts",
			"status_file", name, "txn_ts", us.Timestamp)
		removed++
	}
	return removed, nil
}

// committed reports whether any segment record's update-delta window
// covers the document's timestamp. Records marked for delete still
// pin their artifacts; those are reclaimed with the segment itself.
func committed(snap *ledger.Snapshot, us *delta.UpdateStatus) bool {
	touched := make(map[model.SegmentID]bool, len(us.Blocks))
	for _, bd := range us.Blocks {
		touched[bd.Segment] = true
	}
	for i := range snap.Records {
		rec := &snap.Records[i]
		if !touched[rec.ID] || rec.UpdateDeltaEndTimestamp == "" {
			continue
		}
		start, err1 := ledger.DecodeTimestamp(strings.TrimSpace(rec.UpdateDeltaStartTimestamp))
		end, err2 := ledger.DecodeTimestamp(strings.TrimSpace(rec.UpdateDeltaEndTimestamp))
		if err1 != nil || err2 != nil {
			// Undecodable window: keep the artifacts rather than risk
			// deleting referenced data.
			return true
		}
		if us.Timestamp >= start && us.Timestamp <= end {
			return true
		}
	}
	return false
}
