package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/model"
)

// BlockDelta records the delta files one transaction wrote for one
// block.
type BlockDelta struct {
	Segment model.SegmentID `json:"segmentName"`
	Block   model.BlockID   `json:"blockName"`

	// DeleteDeltaFile is set when rows were tombstoned.
	DeleteDeltaFile string `json:"deleteDeltaFileName,omitempty"`
	// UpdateDeltaFile is set when rows were rewritten.
	UpdateDeltaFile string `json:"updateDeltaFileName,omitempty"`

	DeletedRows uint64 `json:"deletedRowCount"`
}

// UpdateStatus is the per-transaction update-status document: the
// blocks a committed mutation touched and the delta files it wrote.
type UpdateStatus struct {
	Timestamp model.Timestamp `json:"updateTimestamp"`
	TxnID     string          `json:"transactionId"`
	Blocks    []BlockDelta    `json:"blocks"`
}

// Store reads and writes update-status documents and delta files in a
// table's metadata location.
type Store struct {
	store  blobstore.BlobStore
	logger *slog.Logger
}

// NewStore returns a Store over the given blob store.
func NewStore(store blobstore.BlobStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{store: store, logger: logger}
}

// Blobs exposes the underlying blob store for delta file access.
func (s *Store) Blobs() blobstore.BlobStore { return s.store }

// WriteStatus persists the update-status document and returns its blob
// name. The document becomes part of committed state only once a ledger
// record's update-delta window covers its timestamp.
func (s *Store) WriteStatus(ctx context.Context, us *UpdateStatus) (string, error) {
	data, err := json.MarshalIndent(us, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize update status: %w", err)
	}

	name := UpdateStatusFileName(us.Timestamp)
	if err := s.store.Put(ctx, name, data); err != nil {
		return "", err
	}

	s.logger.Debug("wrote update status", slog.String("file", name), slog.Int("blocks", len(us.Blocks)))

	return name, nil
}

// ReadStatus loads an update-status document by blob name.
func (s *Store) ReadStatus(ctx context.Context, name string) (*UpdateStatus, error) {
	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		return nil, err
	}

	var us UpdateStatus
	if err := json.Unmarshal(data, &us); err != nil {
		return nil, fmt.Errorf("decode update status %q: %w", name, err)
	}

	return &us, nil
}

// ListStatus returns the blob names of all update-status documents,
// committed or not, sorted by name (and so by transaction timestamp).
func (s *Store) ListStatus(ctx context.Context) ([]string, error) {
	return s.store.List(ctx, updateStatusPrefix)
}

// DeleteTransaction removes every artifact the transaction at ts wrote:
// its update-status document and all of its delta files. Missing blobs
// are ignored, so the call is idempotent.
func (s *Store) DeleteTransaction(ctx context.Context, ts model.Timestamp) error {
	names, err := s.store.List(ctx, "")
	if err != nil {
		return err
	}

	for _, name := range names {
		if !BelongsToTransaction(name, ts) {
			continue
		}
		if err := s.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("remove %q: %w", name, err)
		}
		s.logger.Debug("removed transaction artifact", slog.String("file", name))
	}

	return nil
}
