// Package spatial defines the tree data model shared by the builder,
// serializer, query engine, and merge controller: points, bounding boxes,
// tree references, and the node tree itself.
package spatial

import (
	"fmt"

	"github.com/ssargent/geotree/pkg/coord"
)

// TreeID is a monotonically increasing identifier assigned by the enclosing
// DB whenever a sub-tree is externalized. No two live trees share an id; an
// id reused after removal must reference a tree with equal or newer content.
type TreeID uint64

// Value is the opaque caller payload carried by a record. RecordID supplies
// the extractable id used for deletions; Payload supplies the raw bytes the
// wire codec stores alongside it. A caller's Decoder function reverses
// Payload back into a concrete V on load.
type Value interface {
	RecordID() string
	Payload() []byte
}

// Decoder reconstructs a Value from its id and wire payload. Supplied by the
// caller wherever a tree is deserialized, since V is an open type parameter
// with no way to name a constructor generically.
type Decoder[V Value] func(id string, payload []byte) (V, error)

// Point is an ordered tuple of per-axis coords. Its length is the tree's
// arity D, which must be between 2 and 8 inclusive for every point given to
// a single tree.
type Point[T coord.Number] []coord.Coord[T]

// Dim returns the point's arity.
func (p Point[T]) Dim() int { return len(p) }

// Bounds is a tight axis-aligned enclosing box: a pair of scalar tuples.
type Bounds[T coord.Number] struct {
	Min []T
	Max []T
}

// BoundsOf computes the tight enclosing box of a single point.
func BoundsOf[T coord.Number](p Point[T]) Bounds[T] {
	b := Bounds[T]{Min: make([]T, len(p)), Max: make([]T, len(p))}
	for i, c := range p {
		b.Min[i] = c.Lo
		b.Max[i] = c.Hi
	}
	return b
}

// Union widens b to also enclose o, axis by axis.
func (b Bounds[T]) Union(o Bounds[T]) Bounds[T] {
	out := Bounds[T]{Min: make([]T, len(b.Min)), Max: make([]T, len(b.Max))}
	for i := range b.Min {
		out.Min[i] = b.Min[i]
		if o.Min[i] < out.Min[i] {
			out.Min[i] = o.Min[i]
		}
		out.Max[i] = b.Max[i]
		if o.Max[i] > out.Max[i] {
			out.Max[i] = o.Max[i]
		}
	}
	return out
}

// IntersectsAllAxes reports whether b and box overlap on every axis.
func (b Bounds[T]) IntersectsAllAxes(box Bounds[T]) bool {
	for i := range b.Min {
		if !coord.IntersectIV(b.Min[i], b.Max[i], box.Min[i], box.Max[i]) {
			return false
		}
	}
	return true
}

// TreeRef is a weak back-reference to an externalized sub-tree: an id plus
// the tight enclosing box of everything reachable from it. It is never an
// ownership edge; the owning registry is TreeFile.
type TreeRef[T coord.Number] struct {
	ID     TreeID
	Bounds Bounds[T]
}

func (r TreeRef[T]) String() string {
	return fmt.Sprintf("ref(%d)", r.ID)
}

// Record is a (Point, Value) pair, the atomic unit a tree stores.
type Record[T coord.Number, V Value] struct {
	Point Point[T]
	Value V
}

// InsertKind distinguishes a direct value insert from a pre-built sub-tree
// reference being folded back in, mirroring the builder's two input shapes.
type InsertKind int

const (
	InsertValue InsertKind = iota
	InsertRef
)

// Input is one element of the flat slice the Builder consumes: either a
// fresh (Point, Value) record or an already-externalized TreeRef being
// re-absorbed (e.g. during a merge's rebuild pass).
type Input[T coord.Number, V Value] struct {
	Kind  InsertKind
	Point Point[T] // valid when Kind == InsertValue
	Value V        // valid when Kind == InsertValue
	Ref   TreeRef[T]
}

// NodeKind distinguishes the two node variants without needing a type
// switch at every call site.
type NodeKind int

const (
	KindBranch NodeKind = iota
	KindData
)

// Node is the closed sum type Branch | Data. Implementations are Branch and
// Data in this package; callers switch on Kind().
type Node[T coord.Number, V Value] interface {
	Kind() NodeKind
}

// Branch partitions a range of records along a single axis. Pivots holds
// the ascending separator scalars for that axis (at most branch_factor-1 of
// them). Nodes holds the len(Pivots)+1 gap children. Intersections holds
// children for records straddling one or more pivots, keyed by the bitmask
// of pivot indices they intersect.
type Branch[T coord.Number, V Value] struct {
	Axis          int
	Pivots        []T
	Nodes         []Node[T, V]
	IntersectKeys []uint32
	Intersections []Node[T, V]
}

func (b *Branch[T, V]) Kind() NodeKind { return KindBranch }

// IntersectionFor returns the intersection child for mask, and whether one
// exists.
func (b *Branch[T, V]) IntersectionFor(mask uint32) (Node[T, V], bool) {
	for i, k := range b.IntersectKeys {
		if k == mask {
			return b.Intersections[i], true
		}
	}
	return nil, false
}

// Data is a leaf: an inline batch of records plus zero or more references to
// externalized sub-trees holding the overflow.
type Data[T coord.Number, V Value] struct {
	Records []Record[T, V]
	Refs    []TreeRef[T]
}

func (d *Data[T, V]) Kind() NodeKind { return KindData }

// Tree is an immutable built tree: a root node plus the arity it was built
// for (needed because Data leaves at any depth carry no arity of their own).
type Tree[T coord.Number, V Value] struct {
	Root Node[T, V]
	Dim  int
}

// List drains the whole tree breadth-first and returns every record and
// every ref reachable from the root, independent of any bounding box. Used
// by the merge rebuild pass, which needs a tree's full contents rather than
// a filtered subset.
func (t *Tree[T, V]) List() ([]Record[T, V], []TreeRef[T]) {
	var rows []Record[T, V]
	var refs []TreeRef[T]
	queue := []Node[T, V]{t.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch node := n.(type) {
		case *Branch[T, V]:
			queue = append(queue, node.Intersections...)
			queue = append(queue, node.Nodes...)
		case *Data[T, V]:
			rows = append(rows, node.Records...)
			refs = append(refs, node.Refs...)
		}
	}
	return rows, refs
}

// ListRefs is List without the record payloads, used when only the set of
// referenced sub-tree ids is needed.
func (t *Tree[T, V]) ListRefs() []TreeRef[T] {
	var refs []TreeRef[T]
	queue := []Node[T, V]{t.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch node := n.(type) {
		case *Branch[T, V]:
			queue = append(queue, node.Intersections...)
			queue = append(queue, node.Nodes...)
		case *Data[T, V]:
			refs = append(refs, node.Refs...)
		}
	}
	return refs
}

// Config holds the builder and merge tuning knobs: branch factor, inline
// thresholds, size caps, and rebuild depth. Zero-value Config is invalid;
// use DefaultConfig.
type Config struct {
	BranchFactor   int
	Inline         int
	InlineMaxBytes int
	MaxTreeBytes   int
	ExtRecords     int
	MaxDepth       int
	MaxRecords     int
	RebuildDepth   int
}

// DefaultConfig returns the specification's stated defaults.
func DefaultConfig() Config {
	return Config{
		BranchFactor:   6,
		Inline:         500,
		InlineMaxBytes: 64 * 1024,
		MaxTreeBytes:   4 * 1024 * 1024,
		ExtRecords:     64,
		MaxDepth:       64,
		MaxRecords:     1 << 20,
		RebuildDepth:   2,
	}
}

// Unbounded returns a Config with MaxDepth and MaxRecords relaxed to
// effectively unlimited, keyed by the deletion pass's rebuild step: rebuilding
// a tree under its own id must never re-externalize purely due to depth or
// record-count caps.
func (c Config) Unbounded() Config {
	c.MaxDepth = 1 << 30
	c.MaxRecords = 1 << 62
	return c
}
