package db

import (
	"context"
	"time"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/merge"
)

// BatchRequest bundles one Batch call's inserts and deletes, mirroring
// merge.Request minus the fields the DB fills in itself (roots, NextID,
// Config, Dim).
type BatchRequest[T coord.Number, V spatial.Value] struct {
	Inserts        []spatial.Record[T, V]
	Deletes        []merge.Delete[T]
	ErrorIfMissing bool
}

// Batch runs Merge over the current forest and applies its result under
// the write-ahead protocol spec.md §4.5/§7 describes: persist every newly
// created tree first, then atomically swap the root list, then remove
// whatever became obsolete. A crash between these steps leaves either the
// old forest (pre-swap) or the new one (post-swap) intact — never a forest
// referencing an unpersisted tree.
func (d *DB[T, V]) Batch(ctx context.Context, req BatchRequest[T, V]) (err error) {
	start := time.Now()
	defer func() { d.metrics.recordMerge(time.Since(start), err) }()

	d.mu.Lock()
	roots := append([]spatial.TreeRef[T]{}, d.roots...)
	nextID := d.nextID
	d.mu.Unlock()

	result, err := merge.Merge[T, V](ctx, d.files, merge.Request[T, V]{
		Dim:            d.dim,
		Inserts:        req.Inserts,
		Deletes:        req.Deletes,
		Roots:          roots,
		RebuildDepth:   d.cfg.RebuildDepth,
		ErrorIfMissing: req.ErrorIfMissing,
		Config:         d.cfg,
		NextID:         &nextID,
	})
	if err != nil {
		d.metrics.recordBatchOp("merge", err)
		return err
	}

	for id, tree := range result.Created {
		if err := d.files.Put(ctx, id, tree); err != nil {
			d.metrics.recordBatchOp("persist", err)
			return err
		}
	}

	d.mu.Lock()
	newRoots := make([]spatial.TreeRef[T], 0, len(d.roots)+1)
	rm := make(map[spatial.TreeID]bool, len(result.RmIDs))
	for _, id := range result.RmIDs {
		rm[id] = true
	}
	for _, r := range d.roots {
		if !rm[r.ID] {
			newRoots = append(newRoots, r)
		}
	}
	if result.NewRoot != nil {
		newRoots = append(newRoots, *result.NewRoot)
	}
	d.roots = newRoots
	d.nextID = nextID
	persistErr := d.persistMeta()
	treeCount := len(d.roots)
	d.mu.Unlock()
	if persistErr != nil {
		d.metrics.recordBatchOp("persist-meta", persistErr)
		return persistErr
	}

	for _, id := range result.RmIDs {
		if err := d.files.Delete(ctx, id); err != nil {
			return dberrors.Io("remove obsolete tree", err)
		}
	}

	d.metrics.setTreesTotal(treeCount)
	d.metrics.recordBatchOp("batch", nil)
	return nil
}
