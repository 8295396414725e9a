package treefile_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/storage"
	"github.com/ssargent/geotree/pkg/treefile"
)

type testValue struct {
	ID   string
	Data []byte
}

func (v testValue) RecordID() string { return v.ID }
func (v testValue) Payload() []byte  { return v.Data }

func decodeTestValue(id string, payload []byte) (testValue, error) {
	return testValue{ID: id, Data: payload}, nil
}

func sampleTree(id string) *spatial.Tree[float64, testValue] {
	return &spatial.Tree[float64, testValue]{
		Dim: 2,
		Root: &spatial.Data[float64, testValue]{
			Records: []spatial.Record[float64, testValue]{
				{Point: spatial.Point[float64]{coord.Scalar(1.0), coord.Scalar(2.0)}, Value: testValue{ID: id, Data: []byte(id)}},
			},
		},
	}
}

func newTestTreeFile(t *testing.T) *treefile.TreeFile[float64, testValue] {
	t.Helper()
	backend, err := storage.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	tf, err := treefile.New[float64, testValue](backend, 2, decodeTestValue, 8)
	require.NoError(t, err)
	return tf
}

func TestTreeFilePutGetRoundTrip(t *testing.T) {
	tf := newTestTreeFile(t)
	ctx := context.Background()

	require.NoError(t, tf.Put(ctx, spatial.TreeID(1), sampleTree("rec-1")))

	got, err := tf.Get(ctx, spatial.TreeID(1))
	require.NoError(t, err)
	rows, _ := got.List()
	require.Len(t, rows, 1)
	require.Equal(t, "rec-1", rows[0].Value.RecordID())
}

func TestTreeFileGetUnknownIDErrors(t *testing.T) {
	tf := newTestTreeFile(t)
	_, err := tf.Get(context.Background(), spatial.TreeID(999))
	require.Error(t, err)
}

func TestTreeFileDeleteRemovesEntry(t *testing.T) {
	tf := newTestTreeFile(t)
	ctx := context.Background()
	require.NoError(t, tf.Put(ctx, spatial.TreeID(1), sampleTree("rec-1")))
	require.NoError(t, tf.Delete(ctx, spatial.TreeID(1)))

	_, err := tf.Get(ctx, spatial.TreeID(1))
	require.Error(t, err)
}

// TestTreeFileConcurrentGetSingleFlight is adapted from the teacher's
// bptree_concurrent_test.go pattern: many goroutines hammering Get on the
// same cold id must all observe the same tree without racing the loader.
func TestTreeFileConcurrentGetSingleFlight(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), false)
	require.NoError(t, err)
	ctx := context.Background()
	writer, err := treefile.New[float64, testValue](backend, 2, decodeTestValue, 8)
	require.NoError(t, err)
	require.NoError(t, writer.Put(ctx, spatial.TreeID(1), sampleTree("shared")))
	// A second TreeFile over the same backend has id 1 on disk only, so
	// every Get below races on a cold id.
	tf, err := treefile.New[float64, testValue](backend, 2, decodeTestValue, 8)
	require.NoError(t, err)

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	trees := make([]*spatial.Tree[float64, testValue], goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			tree, err := tf.Get(ctx, spatial.TreeID(1))
			errs[idx] = err
			trees[idx] = tree
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err)
		require.Same(t, trees[0], trees[i])
	}
}

func TestTreeFileConcurrentDistinctIDs(t *testing.T) {
	tf := newTestTreeFile(t)
	ctx := context.Background()

	const n = 30
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id := spatial.TreeID(idx)
			if err := tf.Put(ctx, id, sampleTree(fmt.Sprintf("rec-%d", idx))); err != nil {
				errs[idx] = err
				return
			}
			_, err := tf.Get(ctx, id)
			errs[idx] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}
