// Package ledger persists the authoritative record of a table's
// segments: which segments exist, their lifecycle status, sizes and
// attached update-delta metadata.
//
// The ledger is a single JSON document per table. Every mutation
// rewrites the whole document under the Metadata lock: the new version
// is written as tablestatus-<n> and a CURRENT pointer is swapped last,
// so readers always see a complete prior write and crash recovery is
// trivial: an unswapped document is simply ignored.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/model"
)

const (
	// CurrentFileName is the pointer blob naming the live document.
	CurrentFileName = "CURRENT"
	// statusFilePrefix prefixes versioned ledger documents.
	statusFilePrefix = "tablestatus-"
)

// Snapshot is a consistent read of one ledger document version.
type Snapshot struct {
	// Version of the document this snapshot was read from; 0 for an
	// empty table that has no document yet.
	Version uint64
	// Records in document order.
	Records []SegmentRecord
}

// Get returns the record with the given id, or nil.
func (s *Snapshot) Get(id model.SegmentID) *SegmentRecord {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return &s.Records[i]
		}
	}
	return nil
}

// NextSegmentID allocates the id after the highest numeric id present.
func (s *Snapshot) NextSegmentID() model.SegmentID {
	var max int64 = -1
	for i := range s.Records {
		if n := s.Records[i].ID.Num(); n > max {
			max = n
		}
	}
	return model.SegmentID(strconv.FormatInt(max+1, 10))
}

// ValidSegments returns the records visible to reads.
func (s *Snapshot) ValidSegments() []SegmentRecord {
	var out []SegmentRecord
	for i := range s.Records {
		if s.Records[i].Visible() {
			out = append(out, s.Records[i])
		}
	}
	return out
}

// Store manages the ledger document of one table.
//
// Snapshot is safe without any lock. Commit must only be called while
// holding the table's Metadata lock; the Store cannot verify that and
// the internal mutex only serializes callers within this process.
type Store struct {
	store  blobstore.BlobStore
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a ledger store on the given table storage.
func NewStore(store blobstore.BlobStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{store: store, logger: logger}
}

func statusFileName(version uint64) string {
	return fmt.Sprintf("%s%06d", statusFilePrefix, version)
}

// Snapshot reads the current ledger document. A table without a
// document yields an empty snapshot at version 0.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	cur, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	name := strings.TrimSpace(string(cur))
	version, err := parseVersion(name)
	if err != nil {
		return nil, fmt.Errorf("%w: CURRENT names %q: %v", ErrCorrupt, name, err)
	}
	return s.load(ctx, name, version)
}

// SnapshotVersion reads a specific historical document version.
func (s *Store) SnapshotVersion(ctx context.Context, version uint64) (*Snapshot, error) {
	return s.load(ctx, statusFileName(version), version)
}

func (s *Store) load(ctx context.Context, name string, version uint64) (*Snapshot, error) {
	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: document %s missing", ErrCorrupt, name)
		}
		return nil, err
	}
	var records []SegmentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	seen := make(map[model.SegmentID]bool, len(records))
	for i := range records {
		if seen[records[i].ID] {
			return nil, fmt.Errorf("%w: %s: duplicate segment id %q", ErrCorrupt, name, records[i].ID)
		}
		seen[records[i].ID] = true
	}
	return &Snapshot{Version: version, Records: records}, nil
}

// Commit applies updates and deletions to the current document and
// atomically publishes the result as a new version. Must be called
// while holding the table's Metadata lock. Updates are matched to
// existing records by id; unmatched updates append. Status changes are
// validated against the segment state machine. All written records are
// normalized (canonical timestamps, defaults elided).
func (s *Store) Commit(ctx context.Context, updates []SegmentRecord, deleted []model.SegmentID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	next := &Snapshot{Version: cur.Version + 1}
	drop := make(map[model.SegmentID]bool, len(deleted))
	for _, id := range deleted {
		drop[id] = true
	}
	pending := make(map[model.SegmentID]SegmentRecord, len(updates))
	for _, u := range updates {
		pending[u.ID] = u
	}

	for _, rec := range cur.Records {
		if drop[rec.ID] {
			continue
		}
		if u, ok := pending[rec.ID]; ok {
			if !rec.Status.CanTransition(u.Status) {
				return nil, fmt.Errorf("%w: segment %s: %s -> %s",
					ErrInvalidTransition, rec.ID, rec.Status, u.Status)
			}
			rec = u
			delete(pending, rec.ID)
		}
		rec.normalize()
		next.Records = append(next.Records, rec)
	}
	// Freshly registered segments, in input order.
	for _, u := range updates {
		if rec, ok := pending[u.ID]; ok && !drop[rec.ID] {
			rec.normalize()
			next.Records = append(next.Records, rec)
			delete(pending, u.ID)
		}
	}

	data, err := json.Marshal(next.Records)
	if err != nil {
		return nil, err
	}
	name := statusFileName(next.Version)
	if err := s.store.Put(ctx, name, data); err != nil {
		return nil, fmt.Errorf("write ledger document %s: %w", name, err)
	}
	// The swap of CURRENT is the commit point.
	if err := s.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		return nil, fmt.Errorf("swap ledger CURRENT: %w", err)
	}

	s.logger.Debug("ledger committed",
		"version", next.Version,
		"records", len(next.Records),
		"deleted", len(deleted))
	return next, nil
}

// Versions lists the document versions still present on storage.
func (s *Store) Versions(ctx context.Context) ([]uint64, error) {
	names, err := s.store.List(ctx, statusFilePrefix)
	if err != nil {
		return nil, err
	}
	var versions []uint64
	for _, name := range names {
		if v, err := parseVersion(name); err == nil {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func parseVersion(name string) (uint64, error) {
	rest, ok := strings.CutPrefix(name, statusFilePrefix)
	if !ok {
		return 0, fmt.Errorf("not a ledger document name: %q", name)
	}
	return strconv.ParseUint(rest, 10, 64)
}
