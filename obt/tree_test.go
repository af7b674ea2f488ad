package obt

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReconstructDepthOne(t *testing.T) {
	tree, err := Reconstruct(CompactTree{
		Depth:       1,
		Splits:      []Split{{Kind: SplitFloat, FeatureIndex: 0, Border: 0.5}},
		LeafWeights: []float64{3, 7},
		LeafValues:  mat.NewDense(2, 1, []float64{1.0, 2.0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if tree.NNodes() != 3 {
		t.Fatalf("expected 3 nodes, got %d", tree.NNodes())
	}
	if !almostEqual(tree.Weights[0], 10) {
		t.Errorf("root weight = %g, want 10", tree.Weights[0])
	}
	if !almostEqual(tree.Values.At(0, 0), 1.7) {
		t.Errorf("root value = %g, want 1.7", tree.Values.At(0, 0))
	}
	if !almostEqual(tree.Weights[1], 3) || !almostEqual(tree.Weights[2], 7) {
		t.Errorf("leaf weights = %g, %g, want 3, 7", tree.Weights[1], tree.Weights[2])
	}
	if !almostEqual(tree.Values.At(1, 0), 1.0) || !almostEqual(tree.Values.At(2, 0), 2.0) {
		t.Errorf("leaf values = %g, %g, want 1, 2", tree.Values.At(1, 0), tree.Values.At(2, 0))
	}
	if tree.ChildrenLeft[0] != 1 || tree.ChildrenRight[0] != 2 || tree.ChildrenDefault[0] != 1 {
		t.Errorf("children = %d, %d, %d, want 1, 2, 1",
			tree.ChildrenLeft[0], tree.ChildrenRight[0], tree.ChildrenDefault[0])
	}
	if tree.SplitFeatures[0] != 0 || !almostEqual(tree.SplitBorders[0], 0.5) {
		t.Errorf("root split = f_%d < %g, want f_0 < 0.5",
			tree.SplitFeatures[0], tree.SplitBorders[0])
	}
}

func TestReconstructZeroWeightSentinel(t *testing.T) {
	tree, err := Reconstruct(CompactTree{
		Depth:       1,
		Splits:      []Split{{Kind: SplitFloat, FeatureIndex: 3, Border: 1.5}},
		LeafWeights: []float64{0, 0},
		LeafValues:  mat.NewDense(2, 1, []float64{4.0, 9.0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if !almostEqual(tree.Weights[0], 0) {
		t.Errorf("root weight = %g, want 0", tree.Weights[0])
	}
	if !almostEqual(tree.Values.At(0, 0), -1) {
		t.Errorf("root value = %g, want -1", tree.Values.At(0, 0))
	}
	// leaves keep their serialized values even without training data
	if !almostEqual(tree.Values.At(1, 0), 4.0) || !almostEqual(tree.Values.At(2, 0), 9.0) {
		t.Errorf("leaf values = %g, %g, want 4, 9", tree.Values.At(1, 0), tree.Values.At(2, 0))
	}
}

func TestReconstructDepthZero(t *testing.T) {
	tree, err := Reconstruct(CompactTree{
		Depth:       0,
		LeafWeights: []float64{5},
		LeafValues:  mat.NewDense(1, 1, []float64{2.5}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if tree.NNodes() != 1 || tree.NInternal() != 0 {
		t.Fatalf("expected a single leaf, got %d nodes, %d internal",
			tree.NNodes(), tree.NInternal())
	}
	if !tree.IsLeaf(0) {
		t.Error("node 0 of a depth-0 tree must be a leaf")
	}
	if !almostEqual(tree.Weights[0], 5) || !almostEqual(tree.Values.At(0, 0), 2.5) {
		t.Errorf("node = (%g, %g), want (5, 2.5)", tree.Weights[0], tree.Values.At(0, 0))
	}
	if len(tree.SplitFeatures) != 0 || len(tree.ChildrenLeft) != 0 {
		t.Error("a depth-0 tree must not carry split or children metadata")
	}
}

func depthThreeCompact() CompactTree {
	leafWeights := []float64{4, 0, 3, 1, 0, 0, 2, 6}
	leafValues := make([]float64, 8*2)
	for leaf := 0; leaf < 8; leaf++ {
		leafValues[2*leaf] = float64(leaf)
		leafValues[2*leaf+1] = float64(leaf) * 10
	}
	return CompactTree{
		Depth: 3,
		Splits: []Split{
			{Kind: SplitFloat, FeatureIndex: 7, Border: 0.25},
			{Kind: SplitOneHot, FeatureIndex: 2, Border: 13},
			{Kind: SplitCtr, FeatureIndex: 4, Border: 0.75},
		},
		LeafWeights: leafWeights,
		LeafValues:  mat.NewDense(8, 2, leafValues),
	}
}

func TestReconstructLayout(t *testing.T) {
	tree, err := Reconstruct(depthThreeCompact())
	if err != nil {
		t.Fatal(err)
	}

	if tree.NNodes() != 15 || tree.NInternal() != 7 || tree.NLeaves() != 8 {
		t.Fatalf("layout = %d/%d/%d nodes/internal/leaves, want 15/7/8",
			tree.NNodes(), tree.NInternal(), tree.NLeaves())
	}
	for index := 0; index < tree.NInternal(); index++ {
		if tree.IsLeaf(index) {
			t.Errorf("internal node %d reported as leaf", index)
		}
		if tree.ChildrenLeft[index] != 2*index+1 {
			t.Errorf("node %d left child = %d, want %d", index, tree.ChildrenLeft[index], 2*index+1)
		}
		if tree.ChildrenRight[index] != 2*index+2 {
			t.Errorf("node %d right child = %d, want %d", index, tree.ChildrenRight[index], 2*index+2)
		}
		if tree.ChildrenDefault[index] != tree.ChildrenLeft[index] {
			t.Errorf("node %d default child = %d, want left %d",
				index, tree.ChildrenDefault[index], tree.ChildrenLeft[index])
		}
	}
	for index := tree.NInternal(); index < tree.NNodes(); index++ {
		if !tree.IsLeaf(index) {
			t.Errorf("leaf-band node %d not reported as leaf", index)
		}
	}
}

func TestReconstructWeightConservation(t *testing.T) {
	tree, err := Reconstruct(depthThreeCompact())
	if err != nil {
		t.Fatal(err)
	}

	for index := 0; index < tree.NInternal(); index++ {
		childrenSum := tree.Weights[2*index+1] + tree.Weights[2*index+2]
		if !almostEqual(tree.Weights[index], childrenSum) {
			t.Errorf("node %d weight = %g, children sum = %g",
				index, tree.Weights[index], childrenSum)
		}
	}
	if !almostEqual(tree.Weights[0], 16) {
		t.Errorf("root weight = %g, want 16", tree.Weights[0])
	}
}

func TestReconstructValueAggregation(t *testing.T) {
	tree, err := Reconstruct(depthThreeCompact())
	if err != nil {
		t.Fatal(err)
	}

	for index := 0; index < tree.NInternal(); index++ {
		leftWeight := tree.Weights[2*index+1]
		rightWeight := tree.Weights[2*index+2]
		total := leftWeight + rightWeight
		for class := 0; class < tree.NClass; class++ {
			got := tree.Values.At(index, class)
			if total == 0 {
				if !almostEqual(got, -1) {
					t.Errorf("zero-weight node %d class %d value = %g, want -1", index, class, got)
				}
				continue
			}
			want := (leftWeight*tree.Values.At(2*index+1, class) +
				rightWeight*tree.Values.At(2*index+2, class)) / total
			if !almostEqual(got, want) {
				t.Errorf("node %d class %d value = %g, want %g", index, class, got, want)
			}
		}
	}

	// leaves 4 and 5 carry no weight, so their parent (node 5) is the
	// sentinel while the root stays a real average
	if !almostEqual(tree.Values.At(5, 0), -1) || !almostEqual(tree.Values.At(5, 1), -1) {
		t.Errorf("node 5 value = (%g, %g), want (-1, -1)",
			tree.Values.At(5, 0), tree.Values.At(5, 1))
	}
	if almostEqual(tree.Values.At(0, 0), -1) {
		t.Error("root value must not be the sentinel when training data exists")
	}
}

func TestReconstructSplitBroadcast(t *testing.T) {
	compact := depthThreeCompact()
	tree, err := Reconstruct(compact)
	if err != nil {
		t.Fatal(err)
	}

	// serialized splits run leaf-adjacent first: the last descriptor is
	// the root, the first one covers the level above the leaves
	levels := [][]int{{0}, {1, 2}, {3, 4, 5, 6}}
	for level, indexes := range levels {
		want := compact.Splits[compact.Depth-1-level]
		for _, index := range indexes {
			if tree.SplitFeatures[index] != want.FeatureIndex {
				t.Errorf("node %d split feature = %d, want %d",
					index, tree.SplitFeatures[index], want.FeatureIndex)
			}
			if !almostEqual(tree.SplitBorders[index], want.Border) {
				t.Errorf("node %d split border = %g, want %g",
					index, tree.SplitBorders[index], want.Border)
			}
			if tree.SplitKinds[index] != want.Kind {
				t.Errorf("node %d split kind = %s, want %s",
					index, tree.SplitKinds[index], want.Kind)
			}
		}
	}
}

func TestReconstructDoesNotMutateInput(t *testing.T) {
	compact := depthThreeCompact()
	weightsBefore := append([]float64(nil), compact.LeafWeights...)
	valuesBefore := mat.DenseCopyOf(compact.LeafValues)

	if _, err := Reconstruct(compact); err != nil {
		t.Fatal(err)
	}

	for leaf, weight := range compact.LeafWeights {
		if weight != weightsBefore[leaf] {
			t.Fatalf("leaf weight %d mutated: %g -> %g", leaf, weightsBefore[leaf], weight)
		}
	}
	if !mat.Equal(compact.LeafValues, valuesBefore) {
		t.Fatal("leaf values mutated by reconstruction")
	}
}

func TestReconstructMalformed(t *testing.T) {
	cases := []struct {
		name    string
		compact CompactTree
	}{
		{
			name: "leaf weight count",
			compact: CompactTree{
				Depth:       2,
				Splits:      make([]Split, 2),
				LeafWeights: []float64{1, 2, 3},
				LeafValues:  mat.NewDense(4, 1, nil),
			},
		},
		{
			name: "leaf value rows",
			compact: CompactTree{
				Depth:       2,
				Splits:      make([]Split, 2),
				LeafWeights: []float64{1, 2, 3, 4},
				LeafValues:  mat.NewDense(3, 1, nil),
			},
		},
		{
			name: "split count",
			compact: CompactTree{
				Depth:       2,
				Splits:      make([]Split, 1),
				LeafWeights: []float64{1, 2, 3, 4},
				LeafValues:  mat.NewDense(4, 1, nil),
			},
		},
		{
			name: "missing leaf values",
			compact: CompactTree{
				Depth:       1,
				Splits:      make([]Split, 1),
				LeafWeights: []float64{1, 2},
			},
		},
		{
			name:    "negative depth",
			compact: CompactTree{Depth: -1},
		},
	}

	for _, currentCase := range cases {
		_, err := Reconstruct(currentCase.compact)
		if err == nil {
			t.Errorf("%s: expected an error", currentCase.name)
			continue
		}
		var malformed MalformedTreeError
		if !errors.As(err, &malformed) {
			t.Errorf("%s: expected MalformedTreeError, got %v", currentCase.name, err)
		}
	}
}
