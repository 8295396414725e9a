// Package build implements the recursive tree construction algorithm: given
// a flat slice of (point, value-or-ref) inputs and a Config, it produces a
// root node plus every sub-tree externalized along the way.
package build

import (
	"sort"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/wire"
)

// frame is the per-recursion state threaded through build: the axis level,
// the half-open range of sorted indexes owned by this call, a count that
// grows at each branch descent by the number of the parent range's records
// left out of this child (reset when a new external tree starts), and that
// tree's running serialized byte estimate.
type frame struct {
	level, start, end, count, bytes int
}

// ext resets level/count/bytes for a freshly started external tree while
// keeping the same range: used when max_depth/max_records forces a new
// sub-tree rooted at the same records.
func (f frame) ext() frame {
	return frame{level: 0, start: f.start, end: f.end}
}

func (f frame) len() int { return f.end - f.start }

// Build runs the construction algorithm over inputs and returns a reference
// to the newly built root tree plus every sub-tree (including the root)
// created along the way. is_rm suppresses the ext_records single-sub-tree
// externalization path, matching the deletion pass's rebuild requirement
// that a tree never re-externalizes purely because it got small.
func Build[T coord.Number, V spatial.Value](inputs []spatial.Input[T, V], dim int, cfg spatial.Config, nextID *spatial.TreeID, isRemove bool) (ref *spatial.TreeRef[T], created map[spatial.TreeID]*spatial.Tree[T, V], err error) {
	return buildInternal(inputs, dim, cfg, nil, nextID, isRemove)
}

// BuildInPlace rebuilds a tree's content under a fixed root id rather than
// allocating a fresh one, used by the merge deletion pass when a tree's
// records change but its TreeID must stay stable for existing refs pointing
// at it. Any sub-trees externalized along the way still draw fresh ids from
// the shared nextID counter, exactly as in Build.
func BuildInPlace[T coord.Number, V spatial.Value](inputs []spatial.Input[T, V], dim int, cfg spatial.Config, id spatial.TreeID, nextID *spatial.TreeID, isRemove bool) (ref *spatial.TreeRef[T], created map[spatial.TreeID]*spatial.Tree[T, V], err error) {
	return buildInternal(inputs, dim, cfg, &id, nextID, isRemove)
}

func buildInternal[T coord.Number, V spatial.Value](inputs []spatial.Input[T, V], dim int, cfg spatial.Config, forceID *spatial.TreeID, nextID *spatial.TreeID, isRemove bool) (ref *spatial.TreeRef[T], created map[spatial.TreeID]*spatial.Tree[T, V], err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *dberrors.InvariantViolation:
				err = v
			case *coord.IncomparableError:
				err = dberrors.NewInvariantViolation(v.Error())
			default:
				panic(r)
			}
		}
	}()

	st := &state[T, V]{
		inputs:   inputs,
		dim:      dim,
		cfg:      cfg,
		nextID:   nextID,
		created:  map[spatial.TreeID]*spatial.Tree[T, V]{},
		isRemove: isRemove,
	}
	st.sorted = make([]int, len(inputs))
	for i := range st.sorted {
		st.sorted[i] = i
	}
	st.sortRange(0, len(inputs), 0)

	root := st.build(frame{level: 0, start: 0, end: len(inputs)})

	rootID := *nextID
	if forceID != nil {
		rootID = *forceID
	} else {
		*nextID++
	}
	tree := &spatial.Tree[T, V]{Root: root, Dim: dim}
	st.created[rootID] = tree
	return &spatial.TreeRef[T]{ID: rootID, Bounds: st.boundsOf(0, len(st.sorted))}, st.created, nil
}

type state[T coord.Number, V spatial.Value] struct {
	inputs   []spatial.Input[T, V]
	sorted   []int
	dim      int
	cfg      spatial.Config
	nextID   *spatial.TreeID
	created  map[spatial.TreeID]*spatial.Tree[T, V]
	isRemove bool
}

// axisCoord returns the coord an input presents on the given axis: its
// point's coord directly for a value input, or an interval spanning the
// ref's enclosing bounds for a ref input being folded back in (e.g. during a
// merge rebuild). Treating refs this way lets the same sort/pivot/partition
// code handle both input kinds uniformly.
func (s *state[T, V]) axisCoord(i, axis int) coord.Coord[T] {
	in := s.inputs[i]
	if in.Kind == spatial.InsertValue {
		return in.Point[axis]
	}
	return coord.Interval(in.Ref.Bounds.Min[axis], in.Ref.Bounds.Max[axis])
}

func (s *state[T, V]) sortRange(start, end, axis int) {
	sub := s.sorted[start:end]
	sort.SliceStable(sub, func(a, b int) bool {
		return coord.Cmp(s.axisCoord(sub[a], axis), s.axisCoord(sub[b], axis)) < 0
	})
}

// partition moves every index in [start,end) satisfying pred to the front,
// preserving relative order on each side (a stable partition), and returns
// the boundary index.
func (s *state[T, V]) partition(start, end int, pred func(i int) bool) int {
	sub := s.sorted[start:end]
	kept := make([]int, 0, len(sub))
	rest := make([]int, 0, len(sub))
	for _, idx := range sub {
		if pred(idx) {
			kept = append(kept, idx)
		} else {
			rest = append(rest, idx)
		}
	}
	copy(sub, kept)
	copy(sub[len(kept):], rest)
	return start + len(kept)
}

// consume partitions orig's range starting at cursor by pred, sorts the
// matched sub-range by the next level's axis, and returns a frame describing
// it plus the new cursor position. orig stays fixed across a whole sequence
// of consume calls (one per bucket/gap child); only cursor advances, which
// is how a single branch build threads "how much of the range is left" the
// same way the reference builder's index counter does.
func (s *state[T, V]) consume(orig frame, cursor int, pred func(i int) bool) (frame, int) {
	boundary := s.partition(cursor, orig.end, pred)
	nextAxis := (orig.level + 1) % s.dim
	s.sortRange(cursor, boundary, nextAxis)
	seg := frame{
		level: orig.level + 1,
		start: cursor,
		end:   boundary,
		count: orig.count + orig.len() - (boundary - cursor),
		bytes: orig.bytes,
	}
	return seg, boundary
}

func (s *state[T, V]) boundsOf(start, end int) spatial.Bounds[T] {
	b := spatial.Bounds[T]{Min: make([]T, s.dim), Max: make([]T, s.dim)}
	for a := 0; a < s.dim; a++ {
		lo := s.axisCoord(s.sorted[start], a).Lo
		hi := s.axisCoord(s.sorted[start], a).Hi
		for i := start + 1; i < end; i++ {
			c := s.axisCoord(s.sorted[i], a)
			lo = coord.Min(c, lo)
			hi = coord.Max(c, hi)
		}
		b.Min[a], b.Max[a] = lo, hi
	}
	return b
}

func (s *state[T, V]) assembleData(start, end int) *spatial.Data[T, V] {
	d := &spatial.Data[T, V]{}
	for i := start; i < end; i++ {
		in := s.inputs[s.sorted[i]]
		if in.Kind == spatial.InsertValue {
			d.Records = append(d.Records, spatial.Record[T, V]{Point: in.Point, Value: in.Value})
		} else {
			d.Refs = append(d.Refs, in.Ref)
		}
	}
	return d
}

func (s *state[T, V]) externalize(start, end int) spatial.TreeRef[T] {
	id := *s.nextID
	*s.nextID++
	ref := spatial.TreeRef[T]{ID: id, Bounds: s.boundsOf(start, end)}
	sub := &state[T, V]{inputs: s.inputs, sorted: append([]int(nil), s.sorted[start:end]...), dim: s.dim, cfg: s.cfg, nextID: s.nextID, created: s.created, isRemove: s.isRemove}
	sub.sortRange(0, len(sub.sorted), 0)
	root := sub.build(frame{level: 0, start: 0, end: len(sub.sorted)})
	s.created[id] = &spatial.Tree[T, V]{Root: root, Dim: s.dim}
	return ref
}

func byteSize[T coord.Number, V spatial.Value](n spatial.Node[T, V]) int {
	sz, err := wire.ByteSize(n)
	if err != nil {
		panic(dberrors.NewInvariantViolation("byte size estimate failed: " + err.Error()))
	}
	return sz
}

// build is the recursive construction step, translating §4.2 of the
// specification directly: empty range, inline leaf (with externalization
// segmentation when it crosses a size threshold), ext_records collapse,
// max_depth/max_records forced externalization, or a branch.
func (s *state[T, V]) build(f frame) spatial.Node[T, V] {
	rlen := f.len()
	if rlen == 0 {
		return &spatial.Data[T, V]{}
	}

	if rlen < s.cfg.Inline || rlen <= 2 {
		data := s.assembleData(f.start, f.end)
		dataBytes := byteSize[T, V](data)
		switch {
		case dataBytes >= s.cfg.InlineMaxBytes:
			return s.segmentExternalize(f.start, f.end)
		case rlen > 1 && f.bytes+dataBytes > s.cfg.MaxTreeBytes:
			return s.segmentExternalize(f.start, f.end)
		default:
			f.bytes += dataBytes
			return data
		}
	}

	if !s.isRemove && rlen <= s.cfg.ExtRecords {
		ref := s.externalize(f.start, f.end)
		return &spatial.Data[T, V]{Refs: []spatial.TreeRef[T]{ref}}
	}

	if f.level >= s.cfg.MaxDepth || f.count >= s.cfg.MaxRecords {
		id := *s.nextID
		*s.nextID++
		bounds := s.boundsOf(f.start, f.end)
		root := s.build(f.ext())
		s.created[id] = &spatial.Tree[T, V]{Root: root, Dim: s.dim}
		return &spatial.Data[T, V]{Refs: []spatial.TreeRef[T]{{ID: id, Bounds: bounds}}}
	}

	return s.buildBranch(f)
}

// segmentExternalize scans [start,end) left to right, cutting new segments
// whenever the running byte total would cross max_tree_bytes, and emits one
// externalized sub-tree per segment whose root is a Data leaf holding that
// segment (a single record that alone exceeds the bound is still inlined as
// its own one-record segment).
func (s *state[T, V]) segmentExternalize(start, end int) *spatial.Data[T, V] {
	var refs []spatial.TreeRef[T]
	segStart := start
	running := 0
	emit := func(a, b int) {
		id := *s.nextID
		*s.nextID++
		s.created[id] = &spatial.Tree[T, V]{Root: s.assembleData(a, b), Dim: s.dim}
		refs = append(refs, spatial.TreeRef[T]{ID: id, Bounds: s.boundsOf(a, b)})
	}
	for i := start; i < end; i++ {
		recBytes := s.recordByteEstimate(s.sorted[i])
		if segStart < i && running+recBytes > s.cfg.MaxTreeBytes {
			emit(segStart, i)
			segStart = i
			running = 0
		}
		running += recBytes
	}
	if segStart < end {
		emit(segStart, end)
	}
	return &spatial.Data[T, V]{Refs: refs}
}

// recordByteEstimate approximates one record or ref's encoded size by
// encoding it alone; used only to decide segment cut points, not to produce
// the final bytes.
func (s *state[T, V]) recordByteEstimate(idx int) int {
	in := s.inputs[idx]
	var d *spatial.Data[T, V]
	if in.Kind == spatial.InsertValue {
		d = &spatial.Data[T, V]{Records: []spatial.Record[T, V]{{Point: in.Point, Value: in.Value}}}
	} else {
		d = &spatial.Data[T, V]{Refs: []spatial.TreeRef[T]{in.Ref}}
	}
	return byteSize[T, V](d)
}

// buildBranch chooses pivots along the current axis, partitions the range
// into intersection buckets and gap segments without recursing, applies the
// collapse rule if at most one segment ended up non-empty, and otherwise
// recurses into every segment to build the branch's children.
func (s *state[T, V]) buildBranch(f frame) spatial.Node[T, V] {
	axis := f.level % s.dim
	isMin := (f.level/s.dim)%2 != 0
	rlen := f.len()
	n := s.cfg.BranchFactor - 1
	if n > rlen-1 {
		n = rlen - 1
	}
	if n < 1 {
		n = 1
	}

	pivots := s.choosePivots(f.start, f.end, axis, n, isMin)
	if len(pivots) == 0 {
		panic(dberrors.NewInvariantViolation("branch requested with zero pivots"))
	}

	masks := make(map[int]uint32, rlen)
	for i := f.start; i < f.end; i++ {
		idx := s.sorted[i]
		c := s.axisCoord(idx, axis)
		var mask uint32
		for pi, p := range pivots {
			if coord.IntersectPivot(c, p) {
				mask |= 1 << uint(pi)
			}
		}
		masks[idx] = mask
	}

	var bucketOrder []uint32
	seen := map[uint32]bool{}
	for i := f.start; i < f.end; i++ {
		m := masks[s.sorted[i]]
		if m != 0 && !seen[m] {
			seen[m] = true
			bucketOrder = append(bucketOrder, m)
		}
	}

	cursor := f.start
	bucketSegs := make([]frame, len(bucketOrder))
	for i, mask := range bucketOrder {
		seg, nc := s.consume(f, cursor, func(idx int) bool { return masks[idx] == mask })
		bucketSegs[i] = seg
		cursor = nc
	}

	gapSegs := make([]frame, 0, len(pivots)+1)
	first := pivots[0]
	seg, nc := s.consume(f, cursor, func(idx int) bool { return s.axisCoord(idx, axis).Hi < first })
	gapSegs = append(gapSegs, seg)
	cursor = nc
	for k := 0; k+1 < len(pivots); k++ {
		lo, hi := pivots[k], pivots[k+1]
		seg, nc := s.consume(f, cursor, func(idx int) bool {
			return coord.IntersectCoord(s.axisCoord(idx, axis), lo, hi)
		})
		gapSegs = append(gapSegs, seg)
		cursor = nc
	}
	last := pivots[len(pivots)-1]
	seg, nc = s.consume(f, cursor, func(idx int) bool { return s.axisCoord(idx, axis).Lo > last })
	gapSegs = append(gapSegs, seg)
	cursor = nc

	if cursor != f.end {
		panic(dberrors.NewInvariantViolation("leftover records not built into nodes or intersections"))
	}

	nonEmpty := 0
	for _, seg := range bucketSegs {
		if seg.len() > 0 {
			nonEmpty++
		}
	}
	for _, seg := range gapSegs {
		if seg.len() > 0 {
			nonEmpty++
		}
	}
	if nonEmpty <= 1 {
		return s.assembleData(f.start, f.end)
	}

	intersections := make([]spatial.Node[T, V], len(bucketSegs))
	for i, bseg := range bucketSegs {
		intersections[i] = s.build(bseg)
	}
	nodes := make([]spatial.Node[T, V], len(gapSegs))
	for i, gseg := range gapSegs {
		nodes[i] = s.build(gseg)
	}

	return &spatial.Branch[T, V]{
		Axis:          axis,
		Pivots:        pivots,
		Nodes:         nodes,
		IntersectKeys: bucketOrder,
		Intersections: intersections,
	}
}

// choosePivots implements §4.2's pivot-selection rule: a single record uses
// its own coord as both sides of find_separation, two records use each
// other, and more records sample z evenly spaced adjacent pairs (z capped to
// both the requested pivot count n and rlen-2 so sample indexes stay in
// range).
func (s *state[T, V]) choosePivots(start, end, axis, n int, isMin bool) []T {
	rlen := end - start
	var pivots []T
	switch {
	case rlen == 1:
		c := s.axisCoord(s.sorted[start], axis)
		pivots = []T{coord.FindSeparation(c.Lo, c.Hi, c.Lo, c.Hi, isMin)}
	case rlen == 2:
		a := s.axisCoord(s.sorted[start], axis)
		b := s.axisCoord(s.sorted[start+1], axis)
		pivots = []T{coord.FindSeparation(a.Lo, a.Hi, b.Lo, b.Hi, isMin)}
	default:
		z := n
		if z > rlen-2 {
			z = rlen - 2
		}
		if z < 1 {
			z = 1
		}
		pivots = make([]T, 0, z)
		for k := 0; k < z; k++ {
			m := k * rlen / (z + 1)
			a := s.axisCoord(s.sorted[start+m], axis)
			b := s.axisCoord(s.sorted[start+m+1], axis)
			pivots = append(pivots, coord.FindSeparation(a.Lo, a.Hi, b.Lo, b.Hi, isMin))
		}
	}
	sort.Slice(pivots, func(i, j int) bool { return pivots[i] < pivots[j] })
	return pivots
}
