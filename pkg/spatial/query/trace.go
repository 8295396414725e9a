package query

import (
	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
)

// ChannelTrace is a channel-backed Trace, grounded on the original's
// tests/max_tree_bytes.rs Trace helper: tests drain Refs to assert which
// TreeRefs a query visited and in what order. Send must keep up with
// Stream's dispatch loop or the query stalls, so tests size Refs generously
// or drain it concurrently.
type ChannelTrace[T coord.Number] struct {
	Refs chan spatial.TreeRef[T]
}

// NewChannelTrace returns a ChannelTrace with a buffered channel of the
// given capacity.
func NewChannelTrace[T coord.Number](capacity int) *ChannelTrace[T] {
	return &ChannelTrace[T]{Refs: make(chan spatial.TreeRef[T], capacity)}
}

func (c *ChannelTrace[T]) Trace(ref spatial.TreeRef[T]) {
	c.Refs <- ref
}

// Close signals no more refs will be traced.
func (c *ChannelTrace[T]) Close() { close(c.Refs) }
