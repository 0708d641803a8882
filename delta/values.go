package delta

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/model"
)

// PatchedRow carries the rewritten values of a single row. The value
// encoding is opaque to the ledger; writers and readers agree on it
// out of band.
type PatchedRow struct {
	Row  model.RowID `json:"row"`
	Data []byte      `json:"data"`
}

// ValuesDelta is the updated-values payload of one block for one
// transaction.
type ValuesDelta struct {
	Rows []PatchedRow `json:"rows"`
}

// WriteValues serializes a values delta into a zstd-framed blob.
func WriteValues(ctx context.Context, store blobstore.BlobStore, name string, vd *ValuesDelta) error {
	raw, err := json.Marshal(vd)
	if err != nil {
		return fmt.Errorf("serialize values delta: %w", err)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("init zstd: %w", err)
	}
	compressed := zw.EncodeAll(raw, nil)
	_ = zw.Close()

	return store.Put(ctx, name, compressed)
}

// ReadValues loads a values delta written by WriteValues.
func ReadValues(ctx context.Context, store blobstore.BlobStore, name string) (*ValuesDelta, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	defer zr.Close()

	raw, err := zr.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress values delta %q: %w", name, err)
	}

	var vd ValuesDelta
	if err := json.Unmarshal(raw, &vd); err != nil {
		return nil, fmt.Errorf("decode values delta %q: %w", name, err)
	}

	return &vd, nil
}
