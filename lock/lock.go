// Package lock provides named advisory locks per table. The locks
// serialize ledger mutation across processes: metadata, compaction and
// per-segment load locks, backed by exclusively created lock files.
//
// Acquisition is bounded-retry and fails fast with ErrBusy rather than
// blocking; a busy lock is a recoverable "retry later" condition, never
// a structural conflict.
package lock

import (
	"errors"
	"fmt"

	"github.com/strata-db/strata/model"
)

// ErrBusy is returned when a lock could not be acquired within the
// configured retries. No state has changed; the caller may retry later.
var ErrBusy = errors.New("lock busy")

// Usage names the scope an advisory lock protects.
type Usage int

const (
	// UsageMetadata guards ledger document rewrites.
	UsageMetadata Usage = iota
	// UsageCompaction guards delta-file compaction of a table.
	UsageCompaction
	// UsageSegment guards one segment's load commit.
	UsageSegment
)

func (u Usage) String() string {
	switch u {
	case UsageMetadata:
		return "meta.lock"
	case UsageCompaction:
		return "compaction.lock"
	case UsageSegment:
		return "segment.lock"
	default:
		return "unknown.lock"
	}
}

// Name identifies one lock of one table.
type Name struct {
	Usage Usage
	// Segment is set only for UsageSegment.
	Segment model.SegmentID
}

// Metadata names the table's metadata lock.
func Metadata() Name { return Name{Usage: UsageMetadata} }

// Compaction names the table's compaction lock.
func Compaction() Name { return Name{Usage: UsageCompaction} }

// Segment names the load lock of one segment.
func Segment(id model.SegmentID) Name {
	return Name{Usage: UsageSegment, Segment: id}
}

// FileName is the lock file name for this lock.
func (n Name) FileName() string {
	if n.Usage == UsageSegment {
		return fmt.Sprintf("Segment_%s.lock", n.Segment)
	}
	return n.Usage.String()
}

// order is the fixed global acquisition order preventing deadlock:
// Metadata before Compaction before Segment.
func (n Name) order() int {
	return int(n.Usage)
}
