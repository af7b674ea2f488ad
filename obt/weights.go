package obt

//RecomputeWeights re-derives the per-node weight array of a materialized
//tree from a fresh dataset. leafIndex assigns every observation to the
//leaf it falls into, as a leaf ordinal in [0, 2^Depth); sampleWeights
//carries one non-negative weight per observation, or nil to count every
//observation as one. Observation weights are bucketed per leaf and the
//same bottom-up aggregation as reconstruction fills the internal nodes.
//
//The result is a freshly allocated array; the tree itself, its values and
//its split metadata are never touched. This is re-scoring, not retraining.
func RecomputeWeights(tree *BinaryTree, leafIndex []int, sampleWeights []float64) ([]float64, error) {
	if sampleWeights != nil && len(sampleWeights) != len(leafIndex) {
		return nil, malformedf("%d leaf assignments but %d sample weights",
			len(leafIndex), len(sampleWeights))
	}

	nLeaves := tree.NLeaves()
	leafWeights := make([]float64, nLeaves)
	for observation, leaf := range leafIndex {
		if leaf < 0 || leaf >= nLeaves {
			return nil, malformedf("observation %d assigned to leaf %d of a %d-leaf tree",
				observation, leaf, nLeaves)
		}
		weight := 1.0
		if sampleWeights != nil {
			weight = sampleWeights[observation]
		}
		leafWeights[leaf] += weight
	}

	return propagateWeights(leafWeights), nil
}
