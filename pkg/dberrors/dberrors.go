// Package dberrors defines the engine's user-visible error taxonomy: Io,
// Serialize, RemoveIdsMissing, InvariantViolation, and Cancelled. Wrapping
// throughout the engine goes through github.com/cockroachdb/errors so causes
// survive across package boundaries and stack traces are available in logs.
package dberrors

import "github.com/cockroachdb/errors"

// Cancelled is returned (not panicked) by a TreeFile load whose context is
// cancelled while it waits. A query stream whose context is cancelled just
// closes; it does not yield Cancelled.
var Cancelled = errors.New("dberrors: operation cancelled")

// Io wraps a failure from the storage backend: a failed open, read, write,
// or sync.
func Io(op string, err error) error {
	return errors.Wrapf(err, "dberrors: io failure during %s", op)
}

// Serialize wraps a failure encoding or decoding a tree's wire format.
func Serialize(op string, err error) error {
	return errors.Wrapf(err, "dberrors: serialize failure during %s", op)
}

// RemoveIdsMissing is returned by a merge's deletion pass when
// error_if_missing was requested and some value ids were not found in any
// reachable tree.
type RemoveIdsMissing struct {
	Ids []string
}

func (e *RemoveIdsMissing) Error() string {
	return errors.Newf("dberrors: %d value id(s) not found during remove", len(e.Ids)).Error()
}

// InvariantViolation signals a structural bug in the builder or merge
// controller, not a user error: an unsorted pivot vector, a bucket leftover
// count mismatch, a remove-rebuild that produced an unexpected tree id, or
// an incomparable (NaN-like) coordinate reaching a public entry point.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "dberrors: invariant violation: " + e.Detail
}

// NewInvariantViolation builds an InvariantViolation carrying detail. The
// builder panics with it and build.Build recovers it (and a coord.Cmp panic)
// into a normal error return; the wire decoder and the DB's root-list
// decoder return it directly.
func NewInvariantViolation(detail string) error {
	return &InvariantViolation{Detail: detail}
}

// IsInvariantViolation reports whether err is, or wraps, an
// InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// IsRemoveIdsMissing reports whether err is, or wraps, a RemoveIdsMissing.
func IsRemoveIdsMissing(err error) bool {
	var rim *RemoveIdsMissing
	return errors.As(err, &rim)
}
