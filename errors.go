package strata

import (
	"errors"

	"github.com/strata-db/strata/ledger"
	"github.com/strata-db/strata/lock"
	"github.com/strata-db/strata/mutate"
)

var (
	// ErrLockBusy is returned when a bounded lock acquisition is
	// exhausted. No state has changed; the caller may retry later.
	ErrLockBusy = lock.ErrBusy

	// ErrConcurrentConflict is returned on a structural conflict at
	// ledger-write time. The transaction aborted with no partial ledger
	// state; retrying is the caller's decision.
	ErrConcurrentConflict = mutate.ErrConcurrentConflict

	// ErrPartialWrite is returned when delta computation or artifact
	// writes failed. The ledger is untouched and the transaction's
	// artifacts were scheduled for cleanup.
	ErrPartialWrite = mutate.ErrPartialWrite

	// ErrLedgerCorrupt is returned when a table's ledger document is
	// unreadable or malformed. Fatal for the table; never repaired
	// automatically.
	ErrLedgerCorrupt = ledger.ErrCorrupt

	// ErrClosed is returned from operations on a closed Table.
	ErrClosed = errors.New("table is closed")
)

// IsRecoverable reports whether the error is a transient condition the
// caller can simply retry, as opposed to a structural conflict or a
// fatal corruption.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrLockBusy)
}
