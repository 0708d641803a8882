package ledger

import "errors"

var (
	// ErrCorrupt is returned when the ledger document is unreadable or
	// malformed. Fatal for the whole table; no automatic repair is
	// attempted.
	ErrCorrupt = errors.New("ledger corrupt")

	// ErrInvalidTransition is returned when a commit would move a segment
	// to a status its state machine does not allow.
	ErrInvalidTransition = errors.New("invalid segment status transition")
)
