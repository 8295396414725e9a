// Package merge implements the two-pass merge controller: a deletion pass
// that rebuilds affected trees in place, and a rebuild pass that folds
// referenced sub-trees back into the builder's input alongside new inserts.
// Merge never writes; it returns a description of what was created and what
// became obsolete, so the caller (pkg/db) can apply a write-ahead protocol.
package merge

import (
	"context"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/build"
)

// Loader resolves a TreeID to its Tree, almost always a TreeFile.
type Loader[T coord.Number, V spatial.Value] interface {
	Get(ctx context.Context, id spatial.TreeID) (*spatial.Tree[T, V], error)
}

// Delete identifies one record to remove by the point it was inserted at
// (used to prune the ref-walk: a ref whose bounds don't intersect a
// delete's point cannot contain that id) and its value id.
type Delete[T coord.Number] struct {
	Point spatial.Point[T]
	ID    string
}

// Request bundles one merge's inputs.
type Request[T coord.Number, V spatial.Value] struct {
	Dim            int
	Inserts        []spatial.Record[T, V]
	Deletes        []Delete[T]
	Roots          []spatial.TreeRef[T]
	RebuildDepth   int
	ErrorIfMissing bool
	Config         spatial.Config
	NextID         *spatial.TreeID
}

// Result is what Merge computed: the new root (nil if the merge produced an
// empty forest), the set of tree ids that became obsolete, and the set of
// newly created trees (including any rebuilt-in-place deletion targets).
type Result[T coord.Number, V spatial.Value] struct {
	NewRoot *spatial.TreeRef[T]
	RmIDs   []spatial.TreeID
	Created map[spatial.TreeID]*spatial.Tree[T, V]
}

// Merge runs the deletion pass followed by the rebuild pass and returns the
// resulting mutation description.
func Merge[T coord.Number, V spatial.Value](ctx context.Context, loader Loader[T, V], req Request[T, V]) (Result[T, V], error) {
	created := map[spatial.TreeID]*spatial.Tree[T, V]{}
	var rmIDs []spatial.TreeID

	missing, err := runDeletionPass(ctx, loader, req, created)
	if err != nil {
		return Result[T, V]{}, err
	}
	if req.ErrorIfMissing && len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		return Result[T, V]{}, &dberrors.RemoveIdsMissing{Ids: ids}
	}

	var rows []spatial.Record[T, V]
	frontierRefs := append([]spatial.TreeRef[T]{}, req.Roots...)
	depth := req.RebuildDepth
	if depth < 1 {
		depth = 1
	}
	for i := 0; i < depth && len(frontierRefs) > 0; i++ {
		var next []spatial.TreeRef[T]
		for _, ref := range frontierRefs {
			// A tree the deletion pass rebuilt is folded from its rebuilt
			// content; it is then obsolete, so it leaves created.
			tree, ok := created[ref.ID]
			if ok {
				delete(created, ref.ID)
			} else {
				var err error
				tree, err = loader.Get(ctx, ref.ID)
				if err != nil {
					return Result[T, V]{}, dberrors.Io("merge rebuild load", err)
				}
			}
			list, refs := tree.List()
			rows = append(rows, list...)
			next = append(next, refs...)
			rmIDs = append(rmIDs, ref.ID)
		}
		frontierRefs = next
	}

	inputs := make([]spatial.Input[T, V], 0, len(frontierRefs)+len(rows)+len(req.Inserts))
	for _, ref := range frontierRefs {
		inputs = append(inputs, spatial.Input[T, V]{Kind: spatial.InsertRef, Ref: ref})
	}
	for _, rec := range rows {
		inputs = append(inputs, spatial.Input[T, V]{Kind: spatial.InsertValue, Point: rec.Point, Value: rec.Value})
	}
	for _, rec := range req.Inserts {
		inputs = append(inputs, spatial.Input[T, V]{Kind: spatial.InsertValue, Point: rec.Point, Value: rec.Value})
	}

	var newRoot *spatial.TreeRef[T]
	if len(inputs) > 0 {
		ref, builtCreated, err := build.Build(inputs, req.Dim, req.Config, req.NextID, false)
		if err != nil {
			return Result[T, V]{}, err
		}
		newRoot = ref
		for id, t := range builtCreated {
			created[id] = t
		}
	}

	return Result[T, V]{NewRoot: newRoot, RmIDs: dedupeIDs(rmIDs), Created: created}, nil
}

func dedupeIDs(ids []spatial.TreeID) []spatial.TreeID {
	seen := make(map[spatial.TreeID]bool, len(ids))
	out := make([]spatial.TreeID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
