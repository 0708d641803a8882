// Package event defines the notification hooks fired around mutation
// and ledger status commits. Listeners are explicit interfaces injected
// at construction, not a global registry, which makes listener failure
// handling visible at the call site.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strata-db/strata/model"
)

// Event describes the commit a notification refers to.
type Event struct {
	Table model.TableID
	// TxnID is the id of the committing transaction.
	TxnID string
	// Timestamp is the transaction's start timestamp.
	Timestamp model.Timestamp
	// Segments affected or produced by the commit.
	Segments []model.SegmentID
}

// MutationListener observes delete/update commits. PreMutate failure
// aborts the mutation before any ledger write; PostMutate is
// best-effort after commit.
type MutationListener interface {
	PreMutate(ctx context.Context, ev Event) error
	PostMutate(ctx context.Context, ev Event)
}

// StatusUpdateListener observes load-commit ledger writes. Both hooks
// are synchronous within the commit path; a PreStatusUpdate failure
// aborts the commit, and a PostStatusUpdate failure surfaces as an
// I/O error even though the ledger write cannot be rolled back at that
// point.
type StatusUpdateListener interface {
	PreStatusUpdate(ctx context.Context, ev Event) error
	PostStatusUpdate(ctx context.Context, ev Event) error
}

// Dispatcher fans an event out to the registered listeners.
type Dispatcher struct {
	mutation []MutationListener
	status   []StatusUpdateListener
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given listeners.
func NewDispatcher(logger *slog.Logger, mutation []MutationListener, status []StatusUpdateListener) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{mutation: mutation, status: status, logger: logger}
}

// PreMutate notifies all mutation listeners; the first error aborts.
func (d *Dispatcher) PreMutate(ctx context.Context, ev Event) error {
	for _, l := range d.mutation {
		if err := l.PreMutate(ctx, ev); err != nil {
			return fmt.Errorf("pre-mutate listener: %w", err)
		}
	}
	return nil
}

// PostMutate notifies all mutation listeners, best-effort.
func (d *Dispatcher) PostMutate(ctx context.Context, ev Event) {
	for _, l := range d.mutation {
		l.PostMutate(ctx, ev)
	}
}

// PreStatusUpdate notifies all status listeners; the first error aborts.
func (d *Dispatcher) PreStatusUpdate(ctx context.Context, ev Event) error {
	for _, l := range d.status {
		if err := l.PreStatusUpdate(ctx, ev); err != nil {
			return fmt.Errorf("pre-status-update listener: %w", err)
		}
	}
	return nil
}

// PostStatusUpdate notifies all status listeners. An error here arrives
// after the ledger write and cannot be rolled back; it is surfaced to
// the caller as an I/O failure of the commit.
func (d *Dispatcher) PostStatusUpdate(ctx context.Context, ev Event) error {
	for _, l := range d.status {
		if err := l.PostStatusUpdate(ctx, ev); err != nil {
			return fmt.Errorf("post-status-update listener: %w", err)
		}
	}
	return nil
}
