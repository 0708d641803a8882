package ledger

import (
	"strconv"

	"github.com/strata-db/strata/model"
)

// DefaultFileFormat is assumed when a record does not name one.
const DefaultFileFormat = "columnar_v1"

// SegmentRecord is one entry of the ledger document.
//
// Numeric fields are stored as decimal strings: legacy documents carry
// date strings and stringified sizes, and keeping the wire type stable
// lets one schema read every document generation. Use the typed
// accessors; raw fields are exported only for serialization.
type SegmentRecord struct {
	ID     model.SegmentID `json:"loadName"`
	Status SegmentStatus   `json:"loadStatus"`

	// RawLoadEndTime is the load end instant ("timestamp" in the
	// document for historical reasons).
	RawLoadEndTime   string `json:"timestamp,omitempty"`
	RawLoadStartTime string `json:"loadStartTime,omitempty"`

	DataSize  string `json:"dataSize,omitempty"`
	IndexSize string `json:"indexSize,omitempty"`

	// RowCount is the number of logical rows loaded into the segment.
	// Mutations need it to decide when a segment is fully deleted.
	RowCount int64 `json:"rowCount,omitempty"`

	// SegmentFile references the merged segment descriptor produced at
	// load commit (partition to data-file mapping).
	SegmentFile string `json:"segmentFile,omitempty"`

	// Visibility defaults to "true"; an invisible segment is excluded
	// from reads without changing its status.
	Visibility string `json:"visibility,omitempty"`

	FileFormat string `json:"fileFormat,omitempty"`

	// MergedLoadName is set when the segment was produced by compaction.
	MergedLoadName string `json:"mergedLoadName,omitempty"`

	UpdateDeltaStartTimestamp string `json:"updateDeltaStartTimestamp,omitempty"`
	UpdateDeltaEndTimestamp   string `json:"updateDeltaEndTimestamp,omitempty"`
	UpdateStatusFileName      string `json:"updateStatusFileName,omitempty"`

	// ExternalPath is set for segments added from an external location.
	ExternalPath string `json:"path,omitempty"`

	LatestUpdateEndTimestamp        string `json:"latestUpdateEndTimestamp,omitempty"`
	ModificationOrDeletionTimestamp string `json:"modificationOrDeletionTimestamp,omitempty"`
}

// LoadStartTime decodes the load start instant.
func (r *SegmentRecord) LoadStartTime() (model.Timestamp, error) {
	return DecodeTimestamp(r.RawLoadStartTime)
}

// LoadEndTime decodes the load end instant.
func (r *SegmentRecord) LoadEndTime() (model.Timestamp, error) {
	return DecodeTimestamp(r.RawLoadEndTime)
}

// SetLoadStartTime writes the canonical encoding.
func (r *SegmentRecord) SetLoadStartTime(ts model.Timestamp) {
	r.RawLoadStartTime = ts.String()
}

// SetLoadEndTime writes the canonical encoding.
func (r *SegmentRecord) SetLoadEndTime(ts model.Timestamp) {
	r.RawLoadEndTime = ts.String()
}

// Sizes decodes dataSize and indexSize; absent fields decode to 0.
func (r *SegmentRecord) Sizes() (data, index int64) {
	data, _ = strconv.ParseInt(r.DataSize, 10, 64)
	index, _ = strconv.ParseInt(r.IndexSize, 10, 64)
	return data, index
}

// SetSizes stores dataSize and indexSize.
func (r *SegmentRecord) SetSizes(data, index int64) {
	r.DataSize = strconv.FormatInt(data, 10)
	r.IndexSize = strconv.FormatInt(index, 10)
}

// Visible reports whether the segment contributes rows to reads.
func (r *SegmentRecord) Visible() bool {
	return r.Visibility != "false" && r.Status.Visible()
}

// Format returns the segment file format, defaulted.
func (r *SegmentRecord) Format() string {
	if r.FileFormat == "" {
		return DefaultFileFormat
	}
	return r.FileFormat
}

// SetUpdateDelta attaches the update-delta window and status file
// produced by a committed mutation at ts.
func (r *SegmentRecord) SetUpdateDelta(ts model.Timestamp, statusFile string) {
	if r.UpdateDeltaStartTimestamp == "" {
		r.UpdateDeltaStartTimestamp = ts.String()
	}
	r.UpdateDeltaEndTimestamp = ts.String()
	r.LatestUpdateEndTimestamp = ts.String()
	r.UpdateStatusFileName = statusFile
}

// LastModifiedTime is the latest of the update-delta end and load end
// instants; zero if neither decodes.
func (r *SegmentRecord) LastModifiedTime() model.Timestamp {
	if r.UpdateDeltaEndTimestamp != "" {
		if ts, err := DecodeTimestamp(r.UpdateDeltaEndTimestamp); err == nil {
			return ts
		}
	}
	if r.RawLoadEndTime != "" {
		if ts, err := DecodeTimestamp(r.RawLoadEndTime); err == nil {
			return ts
		}
	}
	return 0
}

// normalize rewrites legacy timestamp encodings to canonical form and
// elides fields holding their default value, so the next document write
// is canonical and compact. Applied on commit only; a snapshot read
// never rewrites the document.
func (r *SegmentRecord) normalize() {
	for _, raw := range []*string{
		&r.RawLoadEndTime, &r.RawLoadStartTime,
		&r.UpdateDeltaStartTimestamp, &r.UpdateDeltaEndTimestamp,
		&r.LatestUpdateEndTimestamp, &r.ModificationOrDeletionTimestamp,
	} {
		if *raw == "" {
			continue
		}
		if ts, err := DecodeTimestamp(*raw); err == nil {
			*raw = ts.String()
		}
	}
	if r.Visibility == "true" {
		r.Visibility = ""
	}
	if r.FileFormat == DefaultFileFormat {
		r.FileFormat = ""
	}
}
