package merge

import (
	"context"
	"fmt"
	"testing"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/build"
)

type testValue struct {
	ID string
}

func (v testValue) RecordID() string { return v.ID }
func (v testValue) Payload() []byte  { return []byte(v.ID) }

type memLoader struct {
	trees map[spatial.TreeID]*spatial.Tree[float64, testValue]
}

func (m *memLoader) Get(_ context.Context, id spatial.TreeID) (*spatial.Tree[float64, testValue], error) {
	t, ok := m.trees[id]
	if !ok {
		return nil, fmt.Errorf("unknown tree id %d", id)
	}
	return t, nil
}

func pointInput(i int) spatial.Input[float64, testValue] {
	return spatial.Input[float64, testValue]{
		Kind:  spatial.InsertValue,
		Point: spatial.Point[float64]{coord.Scalar(float64(i)), coord.Scalar(float64(i))},
		Value: testValue{ID: fmt.Sprintf("r%d", i)},
	}
}

// TestMergeRefIntegrity is spec.md §8 end-to-end scenario 6: rm_tree_ids must
// be disjoint from created_trees, and every ref in the resulting forest must
// resolve to either a surviving root id or one of the newly created trees.
func TestMergeRefIntegrity(t *testing.T) {
	cfg := spatial.DefaultConfig()
	cfg.ExtRecords = 20 // force externalization well before N records

	const n = 500
	inputs := make([]spatial.Input[float64, testValue], 0, n)
	for i := 0; i < n; i++ {
		inputs = append(inputs, pointInput(i))
	}
	nextID := spatial.TreeID(0)
	rootRef, created, err := build.Build(inputs, 2, cfg, &nextID, false)
	if err != nil {
		t.Fatalf("initial Build: %v", err)
	}
	loader := &memLoader{trees: created}

	result, err := Merge[float64, testValue](context.Background(), loader, Request[float64, testValue]{
		Dim:          2,
		Inserts:      []spatial.Record[float64, testValue]{{Point: pointInput(n).Point, Value: pointInput(n).Value}},
		Roots:        []spatial.TreeRef[float64]{*rootRef},
		RebuildDepth: 1,
		Config:       cfg,
		NextID:       &nextID,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	rm := make(map[spatial.TreeID]bool, len(result.RmIDs))
	for _, id := range result.RmIDs {
		rm[id] = true
	}
	for id := range result.Created {
		if rm[id] {
			t.Fatalf("tree id %d appears in both rm_tree_ids and created_trees", id)
		}
	}

	surviving := map[spatial.TreeID]bool{}
	if result.NewRoot != nil {
		surviving[result.NewRoot.ID] = true
	}
	for id := range result.Created {
		surviving[id] = true
	}
	for _, id := range []spatial.TreeID{rootRef.ID} {
		if !rm[id] {
			surviving[id] = true
		}
	}

	for id, tree := range result.Created {
		_, refs := tree.List()
		for _, ref := range refs {
			if rm[ref.ID] {
				t.Fatalf("tree %d references removed tree %d", id, ref.ID)
			}
			if !surviving[ref.ID] {
				t.Fatalf("tree %d references id %d that is neither surviving nor newly created", id, ref.ID)
			}
		}
	}
}
