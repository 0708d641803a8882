// Package compaction decides when accumulated update deltas warrant
// folding back into their base segments, and schedules that work
// asynchronously so mutation commits never wait on it.
package compaction

import (
	"context"

	"github.com/strata-db/strata/delta"
	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/model"
)

// Policy decides whether one segment's delta accumulation crosses the
// compaction threshold.
type Policy interface {
	ShouldCompact(st delta.Stats) bool
}

const (
	// DefaultMaxDeltaFiles is the delta-file count threshold.
	DefaultMaxDeltaFiles = 4
	// DefaultMaxDeltaBytes is the delta-size threshold.
	DefaultMaxDeltaBytes = 64 << 20
)

// HorizontalPolicy triggers horizontal compaction once a segment has
// accumulated too many delta files or too many delta bytes. The zero
// value uses the defaults.
type HorizontalPolicy struct {
	MaxDeltaFiles int
	MaxDeltaBytes int64
}

func (p HorizontalPolicy) ShouldCompact(st delta.Stats) bool {
	maxFiles := p.MaxDeltaFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxDeltaFiles
	}
	maxBytes := p.MaxDeltaBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDeltaBytes
	}
	return st.Files >= maxFiles || st.Bytes >= maxBytes
}

// Trigger evaluates the policy against the live ledger state.
type Trigger struct {
	policy Policy
	ledger *ledger.Store
	deltas *delta.Store
}

// NewTrigger builds a Trigger over the table's ledger and delta stores.
func NewTrigger(policy Policy, ls *ledger.Store, ds *delta.Store) *Trigger {
	if policy == nil {
		policy = HorizontalPolicy{}
	}
	return &Trigger{policy: policy, ledger: ls, deltas: ds}
}

// Candidates returns the visible segments whose delta accumulation
// crosses the policy threshold.
func (t *Trigger) Candidates(ctx context.Context) ([]model.SegmentID, error) {
	snap, err := t.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.SegmentID
	for _, rec := range snap.ValidSegments() {
		if rec.UpdateDeltaEndTimestamp == "" {
			continue
		}
		st, err := t.deltas.SegmentStats(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if t.policy.ShouldCompact(st) {
			out = append(out, rec.ID)
		}
	}
	return out, nil
}
