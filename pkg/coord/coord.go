// Package coord provides the scalar coordinate model shared by every axis of a
// spatial tree: a value that is either a single point (Scalar) or a closed
// range (Interval), plus the comparison and intersection primitives the
// builder and query engine are built from.
package coord

import "golang.org/x/exp/constraints"

// Number is the set of scalar types a coordinate axis can hold. Midpoint and
// ordering arithmetic below relies on the arithmetic operators working across
// this whole set, which Go generics guarantee for any union of numeric
// underlying types.
type Number interface {
	constraints.Integer | constraints.Float
}

// Coord is a single axis value: either a scalar point or a closed interval.
// Interval invariant: Lo <= Hi. For a Scalar coord, Lo == Hi.
type Coord[T Number] struct {
	Lo         T
	Hi         T
	IsInterval bool
}

// Scalar builds a point coordinate.
func Scalar[T Number](x T) Coord[T] {
	return Coord[T]{Lo: x, Hi: x}
}

// Interval builds a range coordinate. Panics if min > max: an inverted
// interval is a caller bug, not a value the engine can reason about.
func Interval[T Number](min, max T) Coord[T] {
	if min > max {
		panic("coord: Interval requires min <= max")
	}
	return Coord[T]{Lo: min, Hi: max, IsInterval: true}
}

// Min and Max return the interval's endpoints, treating a scalar as a
// zero-width interval.
func (c Coord[T]) Min() T { return c.Lo }
func (c Coord[T]) Max() T { return c.Hi }

func (c Coord[T]) String() string {
	return formatCoord(c)
}

// isNaN detects incomparable float values generically. For integer
// instantiations of T this is always false; for floats it reduces to the
// standard x != x trick.
func isNaN[T Number](x T) bool {
	return x != x //nolint:staticcheck // intentional NaN probe across a generic numeric type
}
