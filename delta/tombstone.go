package delta

import (
	"bytes"
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/strata-db/strata/blobstore"
)

// WriteTombstones serializes the bitmap of deleted row IDs into an
// lz4-framed blob. The blob is immutable once written.
func WriteTombstones(ctx context.Context, store blobstore.BlobStore, name string, rows *roaring.Bitmap) error {
	rows.RunOptimize()

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)

	if _, err := rows.WriteTo(zw); err != nil {
		return fmt.Errorf("serialize tombstones: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress tombstones: %w", err)
	}

	return store.Put(ctx, name, buf.Bytes())
}

// ReadTombstones loads a tombstone bitmap written by WriteTombstones.
func ReadTombstones(ctx context.Context, store blobstore.BlobStore, name string) (*roaring.Bitmap, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}

	zr := lz4.NewReader(bytes.NewReader(data))

	rows := roaring.New()
	if _, err := rows.ReadFrom(zr); err != nil {
		return nil, fmt.Errorf("decode tombstones %q: %w", name, err)
	}

	return rows, nil
}
