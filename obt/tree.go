//Package obt materializes oblivious decision trees from their compact
//level-encoded serialization. An oblivious tree shares a single split
//condition across all nodes of a depth level, so the serialized form is a
//short list of per-depth splits plus per-leaf statistics; the materialized
//form is an explicit heap-indexed binary tree usable by attribution
//algorithms.
package obt

import (
	"gonum.org/v1/gonum/mat"
)

//SplitKind tags the origin of a split condition in the vendor model.
//The feature index and border stay opaque integers and numbers to this
//package regardless of the kind.
type SplitKind int

const (
	SplitFloat SplitKind = iota
	SplitOneHot
	SplitCtr
)

func (k SplitKind) String() string {
	switch k {
	case SplitFloat:
		return "float"
	case SplitOneHot:
		return "one_hot"
	case SplitCtr:
		return "ctr"
	}
	return "unknown"
}

//Split is one per-depth split descriptor of a compact oblivious tree.
type Split struct {
	Kind         SplitKind
	FeatureIndex int
	Border       float64
}

//CompactTree is the level-encoded serialization of one oblivious tree.
//Splits holds exactly Depth descriptors ordered as serialized: the level
//adjacent to the leaves first, the root last. LeafWeights holds 2^Depth
//training weights and LeafValues is a 2^Depth x nClass matrix of per-leaf
//prediction vectors, both ordered left to right.
type CompactTree struct {
	Depth       int
	Splits      []Split
	LeafWeights []float64
	LeafValues  *mat.Dense
}

//BinaryTree is a fully materialized oblivious tree. Nodes are addressed by
//a 0-based heap index: node 0 is the root, node i has children 2i+1 and
//2i+2, and the final 2^Depth slots form the leaf band. Weights and Values
//cover every node; the split and children arrays cover internal nodes only
//and are laid out in root-first heap order.
type BinaryTree struct {
	Depth  int
	NClass int

	Weights []float64
	Values  *mat.Dense

	SplitFeatures []int
	SplitBorders  []float64
	SplitKinds    []SplitKind

	ChildrenLeft    []int
	ChildrenRight   []int
	ChildrenDefault []int
}

//NLeaves returns the number of leaves, 2^Depth.
func (t *BinaryTree) NLeaves() int {
	return 1 << t.Depth
}

//NNodes returns the total number of nodes, 2^(Depth+1)-1.
func (t *BinaryTree) NNodes() int {
	return 2*t.NLeaves() - 1
}

//NInternal returns the number of internal nodes, 2^Depth-1.
func (t *BinaryTree) NInternal() int {
	return t.NLeaves() - 1
}

//IsLeaf reports whether the node at the given heap index lies in the leaf
//band.
func (t *BinaryTree) IsLeaf(index int) bool {
	return index >= t.NInternal()
}

//Reconstruct expands one compact oblivious tree into a materialized binary
//tree: leaf statistics are placed into the leaf band unmodified, internal
//weights and values are recomputed bottom-up, the per-depth splits are
//broadcast over their levels and the child index arrays are filled in.
//The input is not mutated. A length mismatch between Depth and the
//serialized arrays yields a MalformedTreeError.
func Reconstruct(compact CompactTree) (*BinaryTree, error) {
	if compact.Depth < 0 {
		return nil, malformedf("negative depth %d", compact.Depth)
	}
	nLeaves := 1 << compact.Depth
	if len(compact.LeafWeights) != nLeaves {
		return nil, malformedf("depth %d requires %d leaf weights, got %d",
			compact.Depth, nLeaves, len(compact.LeafWeights))
	}
	if compact.LeafValues == nil {
		return nil, malformedf("missing leaf values")
	}
	valuesH, nClass := compact.LeafValues.Dims()
	if valuesH != nLeaves {
		return nil, malformedf("depth %d requires %d leaf value rows, got %d",
			compact.Depth, nLeaves, valuesH)
	}
	if len(compact.Splits) != compact.Depth {
		return nil, malformedf("depth %d requires %d splits, got %d",
			compact.Depth, compact.Depth, len(compact.Splits))
	}

	tree := &BinaryTree{Depth: compact.Depth, NClass: nClass}
	nNodes := tree.NNodes()
	nInternal := tree.NInternal()

	tree.Weights = propagateWeights(compact.LeafWeights)

	tree.Values = mat.NewDense(nNodes, nClass, nil)
	for leaf := 0; leaf < nLeaves; leaf++ {
		tree.Values.SetRow(nInternal+leaf, compact.LeafValues.RawRowView(leaf))
	}
	for index := nInternal - 1; index >= 0; index-- {
		leftWeight := tree.Weights[2*index+1]
		rightWeight := tree.Weights[2*index+2]
		total := leftWeight + rightWeight
		for class := 0; class < nClass; class++ {
			if total == 0 {
				// no training data reached this subtree
				tree.Values.Set(index, class, -1)
				continue
			}
			weighted := leftWeight*tree.Values.At(2*index+1, class) +
				rightWeight*tree.Values.At(2*index+2, class)
			tree.Values.Set(index, class, weighted/total)
		}
	}

	// The serialized splits run from the leaf-adjacent level up to the
	// root; the materialized arrays run root-first, each level holding
	// 2^level copies of its descriptor.
	tree.SplitFeatures = make([]int, nInternal)
	tree.SplitBorders = make([]float64, nInternal)
	tree.SplitKinds = make([]SplitKind, nInternal)
	position := 0
	for level := 0; level < compact.Depth; level++ {
		split := compact.Splits[compact.Depth-1-level]
		for copies := 0; copies < 1<<level; copies++ {
			tree.SplitFeatures[position] = split.FeatureIndex
			tree.SplitBorders[position] = split.Border
			tree.SplitKinds[position] = split.Kind
			position++
		}
	}

	tree.ChildrenLeft = make([]int, nInternal)
	tree.ChildrenRight = make([]int, nInternal)
	tree.ChildrenDefault = make([]int, nInternal)
	for index := 0; index < nInternal; index++ {
		tree.ChildrenLeft[index] = 2*index + 1
		tree.ChildrenRight[index] = 2*index + 2
		// missing values route left in the serialized format
		tree.ChildrenDefault[index] = 2*index + 1
	}

	return tree, nil
}

//propagateWeights runs the bottom-up aggregation rule shared by
//reconstruction and node-weight recomputation: leaf weights fill the leaf
//band of a freshly allocated per-node array and every internal node, taken
//in strictly decreasing index order so that its children are already
//final, becomes the sum of its two children.
func propagateWeights(leafWeights []float64) []float64 {
	nLeaves := len(leafWeights)
	nodes := make([]float64, 2*nLeaves-1)
	copy(nodes[nLeaves-1:], leafWeights)
	for index := nLeaves - 2; index >= 0; index-- {
		nodes[index] = nodes[2*index+1] + nodes[2*index+2]
	}
	return nodes
}
