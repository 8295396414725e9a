package db_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/db"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/merge"
	"github.com/ssargent/geotree/pkg/spatial/query"
)

func openTestDB(t *testing.T, maxTreeBytes int) *db.DB[float64, db.DemoValue] {
	t.Helper()
	d, err := db.FromPath[float64, db.DemoValue](t.TempDir(), 2, db.DecodeDemoValue).
		MaxTreeBytes(maxTreeBytes).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func scalarOrInterval(lo, hi float64) coord.Coord[float64] {
	if lo == hi {
		return coord.Scalar(lo)
	}
	return coord.Interval(lo, hi)
}

// sortedPair returns two random floats in [-10,10) ordered lo <= hi, so
// Interval never sees an inverted range.
func sortedPair(rng *rand.Rand) (float64, float64) {
	a := rng.Float64()*20 - 10
	b := rng.Float64()*20 - 10
	if a > b {
		a, b = b, a
	}
	return a, b
}

// drainTrace reads a ChannelTrace on its own goroutine so the query's
// dispatch loop (which sends traces synchronously, see query.Stream) never
// blocks on an unread or undersized buffer. Call trace.Close() once the
// query's result channel has closed, then <-done before reading refs.
func drainTrace(trace *query.ChannelTrace[float64]) (refs *[]spatial.TreeRef[float64], done <-chan struct{}) {
	var collected []spatial.TreeRef[float64]
	d := make(chan struct{})
	go func() {
		defer close(d)
		for ref := range trace.Refs {
			collected = append(collected, ref)
		}
	}()
	return &collected, d
}

// assertTreeSizesWithinBudget checks spec.md §8's "serialized size of any
// single tree <= max_tree_bytes" property against every TreeRef a query
// actually visited.
func assertTreeSizesWithinBudget(t *testing.T, ctx context.Context, d *db.DB[float64, db.DemoValue], refs []spatial.TreeRef[float64], maxBytes int) {
	t.Helper()
	for _, ref := range refs {
		n, err := d.TreeByteSize(ctx, ref.ID)
		require.NoError(t, err)
		require.LessOrEqual(t, n, maxBytes)
	}
}

// TestTiny2DInsertQuery is spec.md §8 end-to-end scenario 1.
func TestTiny2DInsertQuery(t *testing.T) {
	d := openTestDB(t, 5000)
	ctx := context.Background()

	type row struct {
		x0, x1, y0, y1 float64
		payload        string
	}
	rows := []row{
		{1.0, 1.0, 3.0, 3.0, "1;1000"},
		{1.0, 1.0, 2.0, 2.0, "2;2000"},
		{6.0, 9.0, 4.0, 5.0, "3;1000"},
		{-2.5, 0.5, -1.2, -1.2, "4;2000"},
		{-4.5, -4.5, -5.5, -1.2, "5;1000"},
		{-9.0, -8.0, -4.0, 4.0, "6;1000"},
	}

	var inserts []spatial.Record[float64, db.DemoValue]
	for _, r := range rows {
		pt := spatial.Point[float64]{scalarOrInterval(r.x0, r.x1), scalarOrInterval(r.y0, r.y1)}
		inserts = append(inserts, spatial.Record[float64, db.DemoValue]{
			Point: pt,
			Value: db.NewDemoValue([]byte(r.payload)),
		})
	}

	require.NoError(t, d.Batch(ctx, db.BatchRequest[float64, db.DemoValue]{Inserts: inserts}))

	bbox := query.BBox[float64]{coord.Interval(-10.0, 10.0), coord.Interval(-10.0, 10.0)}
	trace := query.NewChannelTrace[float64](4)
	refs, drained := drainTrace(trace)

	var got int
	for res := range d.QueryTrace(ctx, bbox, trace) {
		require.NoError(t, res.Err)
		got++
	}
	trace.Close()
	<-drained
	require.Equal(t, len(rows), got)

	// spec.md §8 scenario 1: every visited tree must be <=5000 bytes.
	assertTreeSizesWithinBudget(t, ctx, d, *refs, 5000)
}

// TestRandomWorkloadUnderSizeCap is spec.md §8 end-to-end scenario 2: 10
// batches of 1000 records; the query must return every inserted record.
func TestRandomWorkloadUnderSizeCap(t *testing.T) {
	d := openTestDB(t, 250_000)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	const batches = 10
	const perBatch = 1000
	total := 0
	for b := 0; b < batches; b++ {
		inserts := make([]spatial.Record[float64, db.DemoValue], 0, perBatch)
		for i := 0; i < perBatch; i++ {
			xLo, xHi := sortedPair(rng)
			yLo, yHi := sortedPair(rng)
			x := scalarOrInterval(xLo, xHi)
			y := scalarOrInterval(yLo, yHi)
			payload := make([]byte, 1+rng.Intn(500))
			inserts = append(inserts, spatial.Record[float64, db.DemoValue]{
				Point: spatial.Point[float64]{x, y},
				Value: db.NewDemoValue(payload),
			})
		}
		require.NoError(t, d.Batch(ctx, db.BatchRequest[float64, db.DemoValue]{Inserts: inserts}))
		total += perBatch
	}

	bbox := query.BBox[float64]{coord.Interval(-10.0, 10.0), coord.Interval(-10.0, 10.0)}
	trace := query.NewChannelTrace[float64](4)
	refs, drained := drainTrace(trace)

	got := 0
	for res := range d.QueryTrace(ctx, bbox, trace) {
		require.NoError(t, res.Err)
		got++
	}
	trace.Close()
	<-drained
	require.Equal(t, total, got)

	// spec.md §8 scenario 2: every traced tree's serialized size <=250000 bytes.
	assertTreeSizesWithinBudget(t, ctx, d, *refs, 250_000)
}

func TestBatchDeleteRemovesRecord(t *testing.T) {
	d := openTestDB(t, 250_000)
	ctx := context.Background()

	pt := spatial.Point[float64]{coord.Scalar(1.0), coord.Scalar(2.0)}
	value := db.NewDemoValue([]byte("hello"))
	require.NoError(t, d.Batch(ctx, db.BatchRequest[float64, db.DemoValue]{
		Inserts: []spatial.Record[float64, db.DemoValue]{{Point: pt, Value: value}},
	}))

	bbox := query.BBox[float64]{coord.Scalar(1.0), coord.Scalar(2.0)}
	count := 0
	for res := range d.Query(ctx, bbox) {
		require.NoError(t, res.Err)
		count++
	}
	require.Equal(t, 1, count)

	require.NoError(t, d.Batch(ctx, db.BatchRequest[float64, db.DemoValue]{
		Deletes: []merge.Delete[float64]{{Point: pt, ID: value.RecordID()}},
	}))

	count = 0
	for res := range d.Query(ctx, bbox) {
		require.NoError(t, res.Err)
		count++
	}
	require.Equal(t, 0, count)
}

func TestStatsReportsRecordCounts(t *testing.T) {
	d := openTestDB(t, 250_000)
	ctx := context.Background()

	var inserts []spatial.Record[float64, db.DemoValue]
	for i := 0; i < 50; i++ {
		inserts = append(inserts, spatial.Record[float64, db.DemoValue]{
			Point: spatial.Point[float64]{coord.Scalar(float64(i)), coord.Scalar(float64(i))},
			Value: db.NewDemoValue([]byte(fmt.Sprintf("v%d", i))),
		})
	}
	require.NoError(t, d.Batch(ctx, db.BatchRequest[float64, db.DemoValue]{Inserts: inserts}))

	s, err := d.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, s.TotalRecords)
}
