// Package query implements tree traversal: a single-tree local walk plus a
// worker-pool streaming engine that follows TreeRefs across a forest.
package query

import (
	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
)

// BBox is a query bounding box: one coord per axis (scalar or interval),
// matched against stored coords on every axis.
type BBox[T coord.Number] []coord.Coord[T]

// Local walks tree from its root and returns every matching record plus
// every sub-tree ref whose bounds intersect bbox on every axis.
func Local[T coord.Number, V spatial.Value](tree *spatial.Tree[T, V], bbox BBox[T]) ([]spatial.Record[T, V], []spatial.TreeRef[T]) {
	var rows []spatial.Record[T, V]
	var refs []spatial.TreeRef[T]
	walk(tree.Root, bbox, &rows, &refs)
	return rows, refs
}

func walk[T coord.Number, V spatial.Value](n spatial.Node[T, V], bbox BBox[T], rows *[]spatial.Record[T, V], refs *[]spatial.TreeRef[T]) {
	switch node := n.(type) {
	case *spatial.Data[T, V]:
		walkData(node, bbox, rows, refs)
	case *spatial.Branch[T, V]:
		walkBranch(node, bbox, rows, refs)
	}
}

func walkData[T coord.Number, V spatial.Value](d *spatial.Data[T, V], bbox BBox[T], rows *[]spatial.Record[T, V], refs *[]spatial.TreeRef[T]) {
	for _, rec := range d.Records {
		if recordMatches(rec.Point, bbox) {
			*rows = append(*rows, rec)
		}
	}
	for _, ref := range d.Refs {
		if refMatches(ref, bbox) {
			*refs = append(*refs, ref)
		}
	}
}

func recordMatches[T coord.Number](p spatial.Point[T], bbox BBox[T]) bool {
	for a, c := range p {
		if !coord.IntersectCoordCoord(c, bbox[a]) {
			return false
		}
	}
	return true
}

func refMatches[T coord.Number](ref spatial.TreeRef[T], bbox BBox[T]) bool {
	for a := range ref.Bounds.Min {
		if !coord.IntersectIV(ref.Bounds.Min[a], ref.Bounds.Max[a], bbox[a].Lo, bbox[a].Hi) {
			return false
		}
	}
	return true
}

// walkBranch computes the matching-pivot bitmask on this branch's axis per
// §4.4, descends into every intersection bucket whose mask overlaps it, and
// descends into whichever gap children the query box's range on this axis
// touches.
func walkBranch[T coord.Number, V spatial.Value](b *spatial.Branch[T, V], bbox BBox[T], rows *[]spatial.Record[T, V], refs *[]spatial.TreeRef[T]) {
	box := bbox[b.Axis]
	var matching uint32
	if len(b.Pivots) > 0 {
		if box.Lo <= b.Pivots[0] {
			matching |= 1 << 0
		}
		for i := 0; i+1 < len(b.Pivots); i++ {
			if coord.IntersectIV(box.Lo, box.Hi, b.Pivots[i], b.Pivots[i+1]) {
				matching |= 1 << uint(i)
				matching |= 1 << uint(i+1)
			}
		}
		if box.Hi >= b.Pivots[len(b.Pivots)-1] {
			matching |= 1 << uint(len(b.Pivots)-1)
		}
	}

	for i, mask := range b.IntersectKeys {
		if mask&matching != 0 {
			walk(b.Intersections[i], bbox, rows, refs)
		}
	}

	if len(b.Pivots) == 0 {
		return
	}
	first, last := b.Pivots[0], b.Pivots[len(b.Pivots)-1]
	if box.Lo <= first {
		walk(b.Nodes[0], bbox, rows, refs)
	}
	for k := 0; k+1 < len(b.Pivots); k++ {
		if coord.IntersectIV(box.Lo, box.Hi, b.Pivots[k], b.Pivots[k+1]) {
			walk(b.Nodes[k+1], bbox, rows, refs)
		}
	}
	if box.Hi >= last {
		walk(b.Nodes[len(b.Nodes)-1], bbox, rows, refs)
	}
}
