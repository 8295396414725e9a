package db

import (
	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
)

// Setup is a fluent builder over spatial.Config and the ambient knobs Open
// needs, grounded on the original's `Setup::from_path(...).max_tree_bytes(n).build()`
// chain (tests/max_tree_bytes.rs): callers override only the knobs they care
// about and Build() opens the database with everything else defaulted.
type Setup[T coord.Number, V spatial.Value] struct {
	dataDir     string
	dim         int
	decode      spatial.Decoder[V]
	cfg         spatial.Config
	compress    bool
	lruCapacity int
}

// FromPath starts a Setup rooted at dataDir for a dim-dimensional tree.
func FromPath[T coord.Number, V spatial.Value](dataDir string, dim int, decode spatial.Decoder[V]) *Setup[T, V] {
	return &Setup[T, V]{
		dataDir: dataDir,
		dim:     dim,
		decode:  decode,
		cfg:     spatial.DefaultConfig(),
	}
}

func (s *Setup[T, V]) BranchFactor(n int) *Setup[T, V]   { s.cfg.BranchFactor = n; return s }
func (s *Setup[T, V]) Inline(n int) *Setup[T, V]         { s.cfg.Inline = n; return s }
func (s *Setup[T, V]) InlineMaxBytes(n int) *Setup[T, V] { s.cfg.InlineMaxBytes = n; return s }
func (s *Setup[T, V]) MaxTreeBytes(n int) *Setup[T, V]   { s.cfg.MaxTreeBytes = n; return s }
func (s *Setup[T, V]) ExtRecords(n int) *Setup[T, V]     { s.cfg.ExtRecords = n; return s }
func (s *Setup[T, V]) MaxDepth(n int) *Setup[T, V]       { s.cfg.MaxDepth = n; return s }
func (s *Setup[T, V]) MaxRecords(n int) *Setup[T, V]     { s.cfg.MaxRecords = n; return s }
func (s *Setup[T, V]) RebuildDepth(n int) *Setup[T, V]   { s.cfg.RebuildDepth = n; return s }
func (s *Setup[T, V]) Compress(on bool) *Setup[T, V]     { s.compress = on; return s }
func (s *Setup[T, V]) LRUCapacity(n int) *Setup[T, V]    { s.lruCapacity = n; return s }

// Build opens the database with the accumulated configuration.
func (s *Setup[T, V]) Build() (*DB[T, V], error) {
	return Open[T, V](s.dim, s.dataDir, s.decode, s.cfg, s.compress, s.lruCapacity)
}
