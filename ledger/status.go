package ledger

import (
	"encoding/json"
	"fmt"
)

// SegmentStatus is the lifecycle state of a segment in the ledger.
type SegmentStatus int

const (
	StatusUnknown SegmentStatus = iota

	// StatusInsertInProgress marks a segment registered by a load that has
	// not committed yet.
	StatusInsertInProgress

	// StatusInsertOverwriteInProgress marks a segment registered by an
	// overwrite load that has not committed yet.
	StatusInsertOverwriteInProgress

	// StatusSuccess marks a fully loaded, visible segment.
	StatusSuccess

	// StatusFailure marks an aborted or zero-effect load. Terminal.
	StatusFailure

	// StatusMarkedForUpdate marks a segment with committed delete or
	// update deltas attached. The segment stays visible; the read path
	// applies the deltas.
	StatusMarkedForUpdate

	// StatusMarkedForDelete marks a segment dropped by overwrite, full
	// delete or compaction supersession. Terminal; reclaimed by a
	// separate cleanup pass.
	StatusMarkedForDelete
)

var statusNames = map[SegmentStatus]string{
	StatusInsertInProgress:          "Insert In Progress",
	StatusInsertOverwriteInProgress: "Insert Overwrite In Progress",
	StatusSuccess:                   "Success",
	StatusFailure:                   "Failure",
	StatusMarkedForUpdate:           "Marked for Update",
	StatusMarkedForDelete:           "Marked for Delete",
}

var statusValues = func() map[string]SegmentStatus {
	m := make(map[string]SegmentStatus, len(statusNames))
	for s, n := range statusNames {
		m[n] = s
	}
	return m
}()

func (s SegmentStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// InProgress reports whether the status is one of the load in-progress states.
func (s SegmentStatus) InProgress() bool {
	return s == StatusInsertInProgress || s == StatusInsertOverwriteInProgress
}

// Visible reports whether a segment in this status contributes rows to reads.
func (s SegmentStatus) Visible() bool {
	return s == StatusSuccess || s == StatusMarkedForUpdate
}

// Terminal reports whether no further transition is allowed.
func (s SegmentStatus) Terminal() bool {
	return s == StatusFailure || s == StatusMarkedForDelete
}

// CanTransition reports whether the state machine allows moving to next.
// Re-asserting the current status is always allowed; commits may update
// other record fields without changing status.
func (s SegmentStatus) CanTransition(next SegmentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusInsertInProgress, StatusInsertOverwriteInProgress:
		return next == StatusSuccess || next == StatusFailure
	case StatusSuccess:
		return next == StatusMarkedForUpdate || next == StatusMarkedForDelete
	case StatusMarkedForUpdate:
		// Stays Marked for Update on further deltas; never re-enters Success.
		return next == StatusMarkedForDelete
	default:
		return false
	}
}

// MarshalJSON writes the status in its ledger-document form.
func (s SegmentStatus) MarshalJSON() ([]byte, error) {
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown segment status %d", int(s))
	}
	return json.Marshal(n)
}

// UnmarshalJSON parses the ledger-document form.
func (s *SegmentStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := statusValues[name]
	if !ok {
		return fmt.Errorf("unknown segment status %q", name)
	}
	*s = v
	return nil
}
