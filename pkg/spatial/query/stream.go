package query

import (
	"context"
	"runtime"

	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"

	"github.com/ssargent/geotree/pkg/coord"
)

// Loader resolves a TreeRef to its backing Tree, almost always a TreeFile;
// named here (rather than imported) so this package never depends on the
// cache/storage layer directly.
type Loader[T coord.Number, V spatial.Value] interface {
	Get(ctx context.Context, id spatial.TreeID) (*spatial.Tree[T, V], error)
}

// Trace receives every TreeRef a cross-tree query visits, in dispatch order,
// including the root. Used for audits and tests; nil disables tracing.
type Trace[T coord.Number] interface {
	Trace(ref spatial.TreeRef[T])
}

// TraceFunc adapts a plain function to Trace.
type TraceFunc[T coord.Number] func(spatial.TreeRef[T])

func (f TraceFunc[T]) Trace(ref spatial.TreeRef[T]) { f(ref) }

// Result is one element of a streaming cross-tree query: either a record or
// an error. A failed tree load yields one error element and the stream keeps
// serving results from the other trees; callers abort early by cancelling
// ctx.
type Result[T coord.Number, V spatial.Value] struct {
	Record spatial.Record[T, V]
	Err    error
}

type workerOutput[T coord.Number, V spatial.Value] struct {
	rows []spatial.Record[T, V]
	refs []spatial.TreeRef[T]
	err  error
}

// Stream runs a cross-tree streaming query starting from root, following
// refs across the forest via loader with a worker pool sized to
// runtime.GOMAXPROCS(0). It returns a channel of Results; cancelling ctx (or
// draining the channel and letting it close on its own) stops all workers
// and discards any in-flight results. No ordering is guaranteed across
// sub-trees.
func Stream[T coord.Number, V spatial.Value](ctx context.Context, loader Loader[T, V], root spatial.TreeRef[T], bbox BBox[T], trace Trace[T]) <-chan Result[T, V] {
	nproc := runtime.GOMAXPROCS(0)
	if nproc < 1 {
		nproc = 1
	}

	refsCh := make(chan spatial.TreeRef[T])
	outCh := make(chan workerOutput[T, V], nproc)
	out := make(chan Result[T, V])

	for i := 0; i < nproc; i++ {
		go func() {
			for ref := range refsCh {
				if trace != nil {
					trace.Trace(ref)
				}
				tree, err := loader.Get(ctx, ref.ID)
				if err != nil {
					select {
					case outCh <- workerOutput[T, V]{err: dberrors.Io("tree load", err)}:
					case <-ctx.Done():
					}
					continue
				}
				rows, refs := Local(tree, bbox)
				select {
				case outCh <- workerOutput[T, V]{rows: rows, refs: refs}:
				case <-ctx.Done():
				}
			}
		}()
	}

	go func() {
		defer close(out)
		defer close(refsCh)

		if trace != nil {
			trace.Trace(root)
		}
		pending := []spatial.TreeRef[T]{}
		rootTree, err := loader.Get(ctx, root.ID)
		var buffered []Result[T, V]
		if err != nil {
			buffered = append(buffered, Result[T, V]{Err: dberrors.Io("root tree load", err)})
		} else {
			rows, refs := Local(rootTree, bbox)
			for _, r := range rows {
				buffered = append(buffered, Result[T, V]{Record: r})
			}
			pending = append(pending, refs...)
		}

		active := 0
		for {
			if len(buffered) > 0 {
				res := buffered[0]
				buffered = buffered[1:]
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
				continue
			}
			if active > 0 {
				select {
				case wo := <-outCh:
					active--
					if wo.err != nil {
						buffered = append(buffered, Result[T, V]{Err: wo.err})
						continue
					}
					for _, r := range wo.rows {
						buffered = append(buffered, Result[T, V]{Record: r})
					}
					pending = append(pending, wo.refs...)
				case <-ctx.Done():
					return
				}
				continue
			}
			if len(pending) > 0 {
				dispatch := pending
				if len(dispatch) > nproc {
					dispatch = dispatch[:nproc]
				}
				pending = pending[len(dispatch):]
				for _, ref := range dispatch {
					select {
					case refsCh <- ref:
						active++
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			return
		}
	}()

	return out
}
