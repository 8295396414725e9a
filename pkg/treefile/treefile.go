// Package treefile is the TreeID-keyed cache and storage front door every
// tree load and store passes through: a map of in-memory trees guarded by a
// map-level RWMutex (grounded on the teacher's pkg/index.IndexManager
// map+mutex shape), a per-id load-once entry so concurrent Gets of the same
// cold id share one disk read, and an optional bounded LRU eviction.
package treefile

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/wire"
	"github.com/ssargent/geotree/pkg/storage"
)

// entry is one id's cached tree plus a load-once gate: the first caller to
// create the entry performs the disk read, everyone else waits on done.
type entry[T coord.Number, V spatial.Value] struct {
	done chan struct{}
	tree *spatial.Tree[T, V]
	err  error
}

func closedEntry[T coord.Number, V spatial.Value](tree *spatial.Tree[T, V]) *entry[T, V] {
	e := &entry[T, V]{done: make(chan struct{}), tree: tree}
	close(e.done)
	return e
}

// TreeFile resolves TreeIDs to Trees, structurally satisfying
// pkg/spatial/query.Loader and pkg/spatial/merge.Loader.
type TreeFile[T coord.Number, V spatial.Value] struct {
	backend storage.Backend
	decode  spatial.Decoder[V]
	dim     int

	mu      sync.RWMutex
	entries map[spatial.TreeID]*entry[T, V]
	cache   *lru.Cache // optional; nil disables eviction (capacity 0)
}

// New builds a TreeFile over backend. capacity bounds the number of trees
// kept resident; 0 disables eviction entirely (spec.md §4.6: "not
// required").
func New[T coord.Number, V spatial.Value](backend storage.Backend, dim int, decode spatial.Decoder[V], capacity int) (*TreeFile[T, V], error) {
	tf := &TreeFile[T, V]{
		backend: backend,
		decode:  decode,
		dim:     dim,
		entries: make(map[spatial.TreeID]*entry[T, V]),
	}
	if capacity > 0 {
		c, err := lru.NewWithEvict(capacity, func(key interface{}, _ interface{}) {
			tf.mu.Lock()
			delete(tf.entries, key.(spatial.TreeID))
			tf.mu.Unlock()
		})
		if err != nil {
			return nil, dberrors.Io("build treefile lru", err)
		}
		tf.cache = c
	}
	return tf, nil
}

// Get returns id's tree, loading it from the backend on a cold cache and
// sharing that one load across any callers racing on the same id.
func (tf *TreeFile[T, V]) Get(ctx context.Context, id spatial.TreeID) (*spatial.Tree[T, V], error) {
	tf.mu.Lock()
	e, ok := tf.entries[id]
	if !ok {
		e = &entry[T, V]{done: make(chan struct{})}
		tf.entries[id] = e
		tf.mu.Unlock()
		tf.load(ctx, id, e)
	} else {
		tf.mu.Unlock()
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, dberrors.Cancelled
	}
	if e.err != nil {
		return nil, e.err
	}

	tf.touch(id)
	return e.tree, nil
}

func (tf *TreeFile[T, V]) load(ctx context.Context, id spatial.TreeID, e *entry[T, V]) {
	defer close(e.done)

	h, err := tf.backend.Open(ctx, storage.TreePath(uint64(id)))
	if err != nil {
		e.err = dberrors.Io("open tree file", err)
		return
	}
	defer h.Close()

	buf, err := storage.ReadFull(h)
	if err != nil {
		e.err = dberrors.Io("read tree file", err)
		return
	}

	tree, err := wire.Deserialize[T, V](buf, tf.dim, tf.decode)
	if err != nil {
		e.err = dberrors.Serialize("deserialize tree file", err)
		return
	}
	e.tree = tree
}

// Put persists tree under id and installs it into the cache, overwriting
// any previously cached entry for that id.
func (tf *TreeFile[T, V]) Put(ctx context.Context, id spatial.TreeID, tree *spatial.Tree[T, V]) error {
	buf, err := wire.Serialize[T, V](tree)
	if err != nil {
		return dberrors.Serialize("serialize tree file", err)
	}

	h, err := tf.backend.Open(ctx, storage.TreePath(uint64(id)))
	if err != nil {
		return dberrors.Io("open tree file", err)
	}
	defer h.Close()

	if err := storage.WriteFull(h, buf); err != nil {
		return dberrors.Io("write tree file", err)
	}

	tf.mu.Lock()
	tf.entries[id] = closedEntry[T, V](tree)
	tf.mu.Unlock()
	tf.touch(id)
	return nil
}

// Delete evicts id from the cache and removes its backing file.
func (tf *TreeFile[T, V]) Delete(ctx context.Context, id spatial.TreeID) error {
	tf.mu.Lock()
	delete(tf.entries, id)
	tf.mu.Unlock()
	if tf.cache != nil {
		tf.cache.Remove(id)
	}
	return tf.backend.Remove(ctx, storage.TreePath(uint64(id)))
}

func (tf *TreeFile[T, V]) touch(id spatial.TreeID) {
	if tf.cache != nil {
		tf.cache.Add(id, struct{}{})
	}
}
