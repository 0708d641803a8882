// Package blobstore abstracts the storage a table lives on.
//
// The ledger, segment descriptors and delta files are all immutable
// blobs: they are written once via Put and never modified in place.
// Put must be atomic: a reader either sees the complete blob or no
// blob at all. The local implementation achieves this with
// write-temp-then-rename; object stores give it natively.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the storage abstraction for one table root.
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Put atomically writes a complete blob. Overwrites are allowed and
	// are atomic as well: concurrent readers see either the old or the
	// new content, never a mix.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// ReadAll opens a blob and reads its full content.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return io.ReadAll(io.NewSectionReader(b, 0, b.Size()))
}
