package db

import (
	"context"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/wire"
)

// TreeStats describes one root tree, adapted from the teacher's Segment
// (pkg/store/store.go) — there, one append-log segment's key count and dead
// byte fraction; here, one root tree's record count and depth.
type TreeStats struct {
	ID      spatial.TreeID `json:"id"`
	Records int            `json:"records"`
	Refs    int            `json:"refs"`
	Depth   int            `json:"depth"`
}

// Stats describes the whole forest, adapted from the teacher's
// ExplainResult global/segment split.
type Stats struct {
	TotalTrees   int         `json:"total_trees"`
	TotalRecords int         `json:"total_records"`
	Trees        []TreeStats `json:"trees"`
}

// Stats walks every root tree and summarizes it, for the CLI's `stats`
// subcommand.
func (d *DB[T, V]) Stats(ctx context.Context) (*Stats, error) {
	roots := d.Roots()
	out := &Stats{Trees: make([]TreeStats, 0, len(roots))}
	for _, root := range roots {
		tree, err := d.files.Get(ctx, root.ID)
		if err != nil {
			return nil, dberrors.Io("load tree for stats", err)
		}
		rows, refs := tree.List()
		ts := TreeStats{
			ID:      root.ID,
			Records: len(rows),
			Refs:    len(refs),
			Depth:   depthOf[T, V](tree.Root),
		}
		out.Trees = append(out.Trees, ts)
		out.TotalTrees++
		out.TotalRecords += ts.Records
	}
	return out, nil
}

// TreeByteSize returns id's serialized size on disk, via wire.ByteSize. Used
// to check spec.md §8's "every visited tree stays within max_tree_bytes"
// property from outside pkg/spatial/build, e.g. against refs drained from a
// query.ChannelTrace.
func (d *DB[T, V]) TreeByteSize(ctx context.Context, id spatial.TreeID) (int, error) {
	tree, err := d.files.Get(ctx, id)
	if err != nil {
		return 0, dberrors.Io("load tree for byte-size check", err)
	}
	n, err := wire.ByteSize[T, V](tree.Root)
	if err != nil {
		return 0, dberrors.Serialize("measure tree byte size", err)
	}
	return n, nil
}

func depthOf[T coord.Number, V spatial.Value](n spatial.Node[T, V]) int {
	b, ok := n.(*spatial.Branch[T, V])
	if !ok {
		return 1
	}
	max := 0
	for _, child := range b.Nodes {
		if d := depthOf[T, V](child); d > max {
			max = d
		}
	}
	for _, child := range b.Intersections {
		if d := depthOf[T, V](child); d > max {
			max = d
		}
	}
	return max + 1
}
