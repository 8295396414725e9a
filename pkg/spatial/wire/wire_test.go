// External test package: wire_test.go builds trees via pkg/spatial/build,
// which itself imports pkg/spatial/wire, so this suite lives in the _test
// package to avoid the import cycle an internal test file would create.
package wire_test

import (
	"fmt"
	"testing"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/build"
	"github.com/ssargent/geotree/pkg/spatial/wire"
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

// TestSerializeDeserializeRoundTrip is spec.md §8 invariant 2:
// deserialize(serialize(T)) == T for every tree the builder produces.
func TestSerializeDeserializeRoundTrip(t *testing.T) {
	var inputs []spatial.Input[float64, testValue]
	for i := 0; i < 200; i++ {
		inputs = append(inputs, spatial.Input[float64, testValue]{
			Kind:  spatial.InsertValue,
			Point: spatial.Point[float64]{coord.Scalar(float64(i)), coord.Interval(float64(i), float64(i)+0.5)},
			Value: testValue{ID: fmt.Sprintf("rec-%d", i), Data: []byte(fmt.Sprintf("payload-%d", i))},
		})
	}
	nextID := spatial.TreeID(0)
	ref, created, err := build.Build(inputs, 2, spatial.DefaultConfig(), &nextID, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	original := created[ref.ID]

	buf, err := wire.Serialize[float64, testValue](original)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	restored, err := wire.Deserialize[float64, testValue](buf, original.Dim, decodeTestValue)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	wantRows, wantRefs := original.List()
	gotRows, gotRefs := restored.List()
	if len(gotRows) != len(wantRows) {
		t.Fatalf("round trip changed record count: got %d want %d", len(gotRows), len(wantRows))
	}
	if len(gotRefs) != len(wantRefs) {
		t.Fatalf("round trip changed ref count: got %d want %d", len(gotRefs), len(wantRefs))
	}

	seen := make(map[string]bool, len(wantRows))
	for _, r := range wantRows {
		seen[r.Value.RecordID()] = true
	}
	for _, r := range gotRows {
		if !seen[r.Value.RecordID()] {
			t.Fatalf("round trip produced unexpected record id %s", r.Value.RecordID())
		}
	}
}

func TestByteSizeMatchesSerializedLength(t *testing.T) {
	data := &spatial.Data[float64, testValue]{
		Records: []spatial.Record[float64, testValue]{
			{Point: spatial.Point[float64]{coord.Scalar(1.0)}, Value: testValue{ID: "a", Data: []byte("x")}},
		},
	}
	tree := &spatial.Tree[float64, testValue]{Root: data, Dim: 1}
	buf, err := wire.Serialize[float64, testValue](tree)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	sz, err := wire.ByteSize[float64, testValue](data)
	if err != nil {
		t.Fatalf("ByteSize: %v", err)
	}
	if sz != len(buf) {
		t.Fatalf("ByteSize %d does not match serialized length %d", sz, len(buf))
	}
}
