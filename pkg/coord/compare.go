package coord

// IncomparableError is panicked by Cmp when it is asked to order a NaN-like
// value. Builders that want a normal error return (rather than a raw panic)
// should recover at their public entry point and wrap this; see
// pkg/spatial/build for the one place that does.
type IncomparableError struct {
	A, B any
}

func (e *IncomparableError) Error() string {
	return "coord: comparison failed, incomparable value (NaN?)"
}

// Cmp orders two coords by their low endpoint, matching coord_cmp in the
// reference builder: sorting only ever needs the low endpoint, regardless of
// whether either side is a scalar or an interval.
func Cmp[T Number](a, b Coord[T]) int {
	if isNaN(a.Lo) || isNaN(b.Lo) {
		panic(&IncomparableError{A: a, B: b})
	}
	switch {
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	default:
		return 0
	}
}

// IntersectIV reports whether closed intervals [a0,a1] and [b0,b1] overlap.
func IntersectIV[T Number](a0, a1, b0, b1 T) bool {
	return a1 >= b0 && a0 <= b1
}

// IntersectPivot reports whether c straddles the pivot scalar p: a Scalar
// coord matches only at exact equality, an Interval matches if p falls
// within its closed range.
func IntersectPivot[T Number](c Coord[T], p T) bool {
	if c.IsInterval {
		return c.Lo <= p && p <= c.Hi
	}
	return c.Lo == p
}

// IntersectCoord range-tests c against an enclosing interval [lo,hi].
func IntersectCoord[T Number](c Coord[T], lo, hi T) bool {
	return IntersectIV(c.Lo, c.Hi, lo, hi)
}

// IntersectCoordCoord reports whether two coords intersect each other.
func IntersectCoordCoord[T Number](a, b Coord[T]) bool {
	return IntersectIV(a.Lo, a.Hi, b.Lo, b.Hi)
}

// Min folds c's low endpoint into accumulator r, keeping the smaller value.
func Min[T Number](c Coord[T], r T) T {
	if c.Lo < r {
		return c.Lo
	}
	return r
}

// Max folds c's high endpoint into accumulator r, keeping the larger value.
func Max[T Number](c Coord[T], r T) T {
	if c.Hi > r {
		return c.Hi
	}
	return r
}

// FindSeparation picks a pivot scalar between interval [aLo,aHi] and interval
// [bLo,bHi]. When the two intervals overlap, it pulls the pivot toward the
// low endpoints (isMin) or the high endpoints (!isMin); when they don't
// overlap, it always returns a clean midpoint between a's high endpoint and
// b's low endpoint. Division truncates for integer T, which is acceptable:
// a pivot only needs to separate the two sides, not sit at an exact
// arithmetic mean.
func FindSeparation[T Number](aLo, aHi, bLo, bHi T, isMin bool) T {
	overlaps := IntersectIV(aLo, aHi, bLo, bHi)
	switch {
	case isMin && overlaps:
		return aLo/2 + bLo/2
	case !isMin && overlaps:
		return aHi/2 + bHi/2
	default:
		return aHi/2 + bLo/2
	}
}
