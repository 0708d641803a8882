// Package loadcommit finalizes bulk-ingestion jobs: it registers an
// in-progress segment at setup, merges per-task segment fragments into
// one descriptor at commit, and publishes or aborts the segment through
// a single guarded ledger write. Overwrite loads additionally rewrite
// the partition maps of the segments they replace.
package loadcommit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/strata-db/strata/blobstore"
	"github.com/strata-db/strata/model"
)

// Fragment is one load task's output: the data files it wrote per
// partition and their aggregate sizes.
type Fragment struct {
	Partitions map[model.Partition][]string
	DataSize   int64
	IndexSize  int64
	RowCount   int64
}

// Descriptor is the merged segment descriptor: the partition to
// data-file mapping the read path resolves a segment through.
type Descriptor struct {
	Partitions map[model.Partition][]string `json:"partitions"`
}

// PartitionSpecs returns the descriptor's partitions, sorted.
func (d *Descriptor) PartitionSpecs() []model.Partition {
	specs := make([]model.Partition, 0, len(d.Partitions))
	for p := range d.Partitions {
		specs = append(specs, p)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i] < specs[j] })
	return specs
}

// DropPartitions removes the given partitions from the descriptor and
// reports whether any partition remains.
func (d *Descriptor) DropPartitions(specs []model.Partition) bool {
	for _, p := range specs {
		delete(d.Partitions, p)
	}
	return len(d.Partitions) > 0
}

// Overlaps reports whether the descriptor serves any of the given
// partitions.
func (d *Descriptor) Overlaps(specs []model.Partition) bool {
	for _, p := range specs {
		if _, ok := d.Partitions[p]; ok {
			return true
		}
	}
	return false
}

// Merge combines all per-task fragments into one descriptor and the
// aggregate sizes and row count.
func Merge(fragments []Fragment) (*Descriptor, Fragment) {
	desc := &Descriptor{Partitions: make(map[model.Partition][]string)}
	var totals Fragment
	for _, f := range fragments {
		for p, files := range f.Partitions {
			desc.Partitions[p] = append(desc.Partitions[p], files...)
		}
		totals.DataSize += f.DataSize
		totals.IndexSize += f.IndexSize
		totals.RowCount += f.RowCount
	}
	for p := range desc.Partitions {
		sort.Strings(desc.Partitions[p])
	}
	return desc, totals
}

// descriptorFileName names a segment descriptor blob. The timestamp
// makes rewrite generations distinct; the ledger's segmentFile field
// points at the live one.
func descriptorFileName(id model.SegmentID, ts model.Timestamp) string {
	return fmt.Sprintf("segments/%s_%s.segment", id, ts)
}

// WriteDescriptor persists a descriptor and returns its blob name.
func WriteDescriptor(ctx context.Context, store blobstore.BlobStore, id model.SegmentID, ts model.Timestamp, desc *Descriptor) (string, error) {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize segment descriptor: %w", err)
	}
	name := descriptorFileName(id, ts)
	if err := store.Put(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// ReadDescriptor loads a descriptor by blob name.
func ReadDescriptor(ctx context.Context, store blobstore.BlobStore, name string) (*Descriptor, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("decode segment descriptor %q: %w", name, err)
	}
	return &desc, nil
}
