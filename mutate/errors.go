package mutate

import "errors"

var (
	// ErrConcurrentConflict reports a structural conflict found at
	// ledger-write time, such as a concurrent compaction holding the
	// Compaction lock while this transaction needs to declare a segment
	// dead, or a touched segment vanishing between fan-out and commit.
	// The transaction aborts with no partial ledger state; it is not
	// retried internally.
	ErrConcurrentConflict = errors.New("concurrent structural conflict")

	// ErrPartialWrite reports a failure while computing or writing
	// delta artifacts. The ledger is untouched; artifacts written so
	// far are scheduled for cleanup.
	ErrPartialWrite = errors.New("partial write failure")
)
