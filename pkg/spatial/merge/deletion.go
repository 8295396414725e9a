package merge

import (
	"context"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/build"
)

// runDeletionPass walks each root's sub-tree graph, dropping any record
// whose id is in req.Deletes and rebuilding any tree whose content changed
// under its original TreeID. It returns the set of delete ids that were
// never found, whether or not req.ErrorIfMissing is set. Rebuilt trees are
// written into created so the caller persists them alongside anything the
// rebuild pass produces.
func runDeletionPass[T coord.Number, V spatial.Value](ctx context.Context, loader Loader[T, V], req Request[T, V], created map[spatial.TreeID]*spatial.Tree[T, V]) (map[string]bool, error) {
	if len(req.Deletes) == 0 {
		return nil, nil
	}

	remaining := make(map[string]spatial.Point[T], len(req.Deletes))
	for _, d := range req.Deletes {
		remaining[d.ID] = d.Point
	}

	unboundedCfg := req.Config.Unbounded()

	queue := make([]spatial.TreeID, 0, len(req.Roots))
	for _, r := range req.Roots {
		queue = append(queue, r.ID)
	}
	visited := map[spatial.TreeID]bool{}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		tree, err := loader.Get(ctx, id)
		if err != nil {
			return nil, dberrors.Io("deletion pass load", err)
		}
		records, refs := tree.List()

		kept := records[:0:0]
		changed := false
		for _, rec := range records {
			rid := rec.Value.RecordID()
			if _, isDelete := remaining[rid]; isDelete {
				changed = true
				delete(remaining, rid)
				continue
			}
			kept = append(kept, rec)
		}

		for _, ref := range refs {
			if refMightContainDelete(ref, remaining) {
				queue = append(queue, ref.ID)
			}
		}

		if !changed {
			continue
		}

		if len(kept) == 0 && len(refs) == 0 {
			created[id] = &spatial.Tree[T, V]{Root: &spatial.Data[T, V]{}, Dim: tree.Dim}
			continue
		}

		inputs := make([]spatial.Input[T, V], 0, len(kept)+len(refs))
		for _, rec := range kept {
			inputs = append(inputs, spatial.Input[T, V]{Kind: spatial.InsertValue, Point: rec.Point, Value: rec.Value})
		}
		for _, ref := range refs {
			inputs = append(inputs, spatial.Input[T, V]{Kind: spatial.InsertRef, Ref: ref})
		}

		ref, rebuilt, err := build.BuildInPlace(inputs, tree.Dim, unboundedCfg, id, req.NextID, true)
		if err != nil {
			return nil, err
		}
		if ref == nil || ref.ID != id {
			return nil, dberrors.NewInvariantViolation("remove-rebuild produced an unexpected tree id")
		}
		for rid, t := range rebuilt {
			created[rid] = t
		}
	}

	return remaining2ids(remaining), nil
}

func refMightContainDelete[T coord.Number](ref spatial.TreeRef[T], remaining map[string]spatial.Point[T]) bool {
	for _, p := range remaining {
		match := true
		for a := range ref.Bounds.Min {
			if !coord.IntersectCoord(p[a], ref.Bounds.Min[a], ref.Bounds.Max[a]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func remaining2ids[T coord.Number](remaining map[string]spatial.Point[T]) map[string]bool {
	out := make(map[string]bool, len(remaining))
	for id := range remaining {
		out[id] = true
	}
	return out
}
