// Package model defines the core identifiers shared across strata packages.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// TableID identifies a table by name and storage root.
type TableID struct {
	// Name is the logical table name, used in lock names and log output.
	Name string
	// Path is the storage root of the table. All ledger documents, segment
	// descriptors and delta files live under this root.
	Path string
}

func (t TableID) String() string {
	return t.Name
}

// SegmentID identifies an immutable data segment within one table.
// IDs are decimal strings allocated sequentially at load setup.
type SegmentID string

// Num returns the numeric value of the segment ID, or -1 if it is not
// a plain decimal (externally added segments may carry arbitrary IDs).
func (s SegmentID) Num() int64 {
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// BlockID identifies a data block (one columnar file) within a segment.
type BlockID string

// RowID identifies a row within a block.
type RowID = uint32

// Timestamp is a timezone-independent instant in epoch milliseconds.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// String renders the timestamp in its canonical decimal form.
func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Partition is a fully qualified partition value, e.g. "dt=2024-01-01/region=eu".
type Partition string

// BlockRef addresses one block of one segment.
type BlockRef struct {
	Segment SegmentID
	Block   BlockID
}

func (r BlockRef) String() string {
	return fmt.Sprintf("%s/%s", r.Segment, r.Block)
}
