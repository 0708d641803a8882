// Package txn issues transaction identities.
//
// A transaction carries a single start timestamp fixed at creation.
// Every artifact name and ledger field the transaction produces reuses
// that one value, so multi-step work stays self-consistent even while
// wall-clock time advances during execution.
package txn

import (
	"sync"

	"github.com/google/uuid"

	"github.com/strata-db/strata/model"
)

// Kind classifies a transaction.
type Kind int

const (
	KindLoad Kind = iota
	KindOverwrite
	KindDelete
	KindUpdate
	KindCompaction
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindOverwrite:
		return "overwrite"
	case KindDelete:
		return "delete"
	case KindUpdate:
		return "update"
	case KindCompaction:
		return "compaction"
	default:
		return "unknown"
	}
}

// Transaction is an issued transaction identity. It holds no locks.
type Transaction struct {
	ID             string
	Kind           Kind
	StartTimestamp model.Timestamp
}

// Manager issues transactions. Start timestamps are strictly
// increasing within one manager, so two transactions issued
// back-to-back in the same millisecond still get distinct artifact
// names.
type Manager struct {
	mu   sync.Mutex
	last model.Timestamp
	now  func() model.Timestamp
}

// NewManager creates a transaction manager using the wall clock.
func NewManager() *Manager {
	return &Manager{now: model.Now}
}

// NewManagerWithClock creates a manager with an injected clock, for tests.
func NewManagerWithClock(now func() model.Timestamp) *Manager {
	return &Manager{now: now}
}

// Begin issues a new transaction of the given kind. It does not
// acquire any locks.
func (m *Manager) Begin(kind Kind) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now()
	if ts <= m.last {
		ts = m.last + 1
	}
	m.last = ts

	return &Transaction{
		ID:             uuid.NewString(),
		Kind:           kind,
		StartTimestamp: ts,
	}
}
