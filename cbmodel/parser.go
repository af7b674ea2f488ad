package cbmodel

import (
	"encoding/json"
	"fmt"
	"io"
	"math/bits"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/tarstars/oblivious_shap/obt"
)

//Task is the learning task an ensemble was trained for. It is metadata
//for callers (e.g. to pick a link function over raw leaf values); the
//reconstruction itself is task-agnostic.
type Task int

const (
	TaskRegression Task = iota
	TaskBinaryClassification
	TaskMulticlassClassification
)

func (t Task) String() string {
	switch t {
	case TaskRegression:
		return "regression"
	case TaskBinaryClassification:
		return "binary_classification"
	case TaskMulticlassClassification:
		return "multiclass_classification"
	}
	return "unknown"
}

//objectiveTaskMap maps a CatBoost loss function to its task. MultiClassOneVsAll
//is deliberately absent: its booster layout is one tree per class and does
//not fit the single-ensemble reading here.
var objectiveTaskMap = map[string]Task{
	"RMSE":         TaskRegression,
	"Logloss":      TaskBinaryClassification,
	"CrossEntropy": TaskBinaryClassification,
	"MultiClass":   TaskMulticlassClassification,
}

//UnsupportedTaskError reports an ensemble whose declared objective has no
//known task mapping.
type UnsupportedTaskError struct {
	Objective string
}

func (e UnsupportedTaskError) Error() string {
	return fmt.Sprintf("%s model objective is not supported", e.Objective)
}

//Model is a decoded CatBoost oblivious-tree ensemble: one materialized
//tree per serialized tree plus the ensemble metadata downstream
//attribution code needs.
type Model struct {
	Objective    string
	Task         Task
	NClass       int
	Depth        int
	FeatureNames []string
	Trees        []*obt.BinaryTree
}

//NTrees returns the number of trees in the ensemble.
func (m *Model) NTrees() int {
	return len(m.Trees)
}

//Load reads and decodes a CatBoost JSON model dump from a file.
func Load(fileName string) (*Model, error) {
	source, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open model file %s", fileName)
	}
	defer source.Close()

	model, err := Decode(source)
	if err != nil {
		return nil, errors.Wrapf(err, "decode model file %s", fileName)
	}
	return model, nil
}

//Decode decodes a CatBoost JSON model dump and materializes every tree.
//Trees are mutually independent, so reconstruction runs on one worker per
//CPU. A tree whose serialized arrays are inconsistent aborts the whole
//decode with a wrapped MalformedTreeError; nothing is truncated or padded.
func Decode(r io.Reader) (*Model, error) {
	var raw rawModel
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode catboost json dump")
	}

	objective := raw.ModelInfo.Params.LossFunction.Type
	task, ok := objectiveTaskMap[objective]
	if !ok {
		return nil, UnsupportedTaskError{Objective: objective}
	}

	compact := make([]obt.CompactTree, len(raw.ObliviousTrees))
	nClass := 0
	for treeInd, currentRawTree := range raw.ObliviousTrees {
		currentTree, err := decodeTree(currentRawTree)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", treeInd)
		}
		_, treeNClass := currentTree.LeafValues.Dims()
		if treeInd == 0 {
			nClass = treeNClass
		} else if treeNClass != nClass {
			return nil, errors.Wrapf(
				obt.MalformedTreeError{Reason: fmt.Sprintf(
					"has %d classes per leaf, ensemble has %d", treeNClass, nClass)},
				"tree %d", treeInd)
		}
		compact[treeInd] = currentTree
	}

	trees, err := reconstructAll(compact, runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	featureNames := make([]string, 0, len(raw.FeaturesInfo.FloatFeatures))
	for _, feature := range raw.FeaturesInfo.FloatFeatures {
		featureNames = append(featureNames, feature.FeatureID)
	}

	return &Model{
		Objective:    objective,
		Task:         task,
		NClass:       nClass,
		Depth:        raw.ModelInfo.Params.TreeLearnerOptions.Depth,
		FeatureNames: featureNames,
		Trees:        trees,
	}, nil
}

//decodeTree converts one serialized tree into its compact form. The depth
//is implied by the leaf count; the flat leaf_values array is reshaped
//leaf-major into a nLeaves x nClass matrix.
func decodeTree(raw rawTree) (obt.CompactTree, error) {
	nLeaves := len(raw.LeafWeights)
	if nLeaves == 0 {
		return obt.CompactTree{}, obt.MalformedTreeError{Reason: "no leaf weights"}
	}
	depth := bits.Len(uint(nLeaves)) - 1
	if 1<<depth != nLeaves {
		return obt.CompactTree{}, obt.MalformedTreeError{Reason: fmt.Sprintf(
			"leaf count %d is not a power of two", nLeaves)}
	}
	if len(raw.LeafValues)%nLeaves != 0 {
		return obt.CompactTree{}, obt.MalformedTreeError{Reason: fmt.Sprintf(
			"%d leaf values do not divide into %d leaves", len(raw.LeafValues), nLeaves)}
	}
	nClass := len(raw.LeafValues) / nLeaves

	splits := make([]obt.Split, len(raw.Splits))
	for splitInd, currentRawSplit := range raw.Splits {
		currentSplit, err := decodeSplit(currentRawSplit)
		if err != nil {
			return obt.CompactTree{}, errors.Wrapf(err, "split %d", splitInd)
		}
		splits[splitInd] = currentSplit
	}

	return obt.CompactTree{
		Depth:       depth,
		Splits:      splits,
		LeafWeights: raw.LeafWeights,
		LeafValues:  mat.NewDense(nLeaves, nClass, raw.LeafValues),
	}, nil
}

//decodeSplit reads one split descriptor. FloatFeature and OneHotFeature
//splits name their fields explicitly; everything else is a CTR split with
//a target border index.
func decodeSplit(raw rawSplit) (obt.Split, error) {
	switch raw.SplitType {
	case "FloatFeature":
		if raw.FloatFeatureIndex == nil || raw.Border == nil {
			return obt.Split{}, errors.New("FloatFeature split without float_feature_index or border")
		}
		return obt.Split{Kind: obt.SplitFloat, FeatureIndex: *raw.FloatFeatureIndex, Border: *raw.Border}, nil
	case "OneHotFeature":
		if raw.CatFeatureIndex == nil || raw.Value == nil {
			return obt.Split{}, errors.New("OneHotFeature split without cat_feature_index or value")
		}
		return obt.Split{Kind: obt.SplitOneHot, FeatureIndex: *raw.CatFeatureIndex, Border: *raw.Value}, nil
	default:
		if raw.CtrTargetBorderIdx == nil || raw.Border == nil {
			return obt.Split{}, errors.New("ctr split without ctr_target_border_idx or border")
		}
		return obt.Split{Kind: obt.SplitCtr, FeatureIndex: *raw.CtrTargetBorderIdx, Border: *raw.Border}, nil
	}
}

//reconstructAll materializes every compact tree on a bounded pool of
//workers. Each tree's input and output are disjoint, so the workers need
//no coordination beyond the task channel.
func reconstructAll(compact []obt.CompactTree, threadsNum int) ([]*obt.BinaryTree, error) {
	if threadsNum < 1 {
		threadsNum = 1
	}

	trees := make([]*obt.BinaryTree, len(compact))
	treeErrors := make([]error, len(compact))

	tasks := make(chan int)
	var wg sync.WaitGroup
	for workerInd := 0; workerInd < threadsNum; workerInd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for treeInd := range tasks {
				trees[treeInd], treeErrors[treeInd] = obt.Reconstruct(compact[treeInd])
			}
		}()
	}
	for treeInd := range compact {
		tasks <- treeInd
	}
	close(tasks)
	wg.Wait()

	for treeInd, err := range treeErrors {
		if err != nil {
			return nil, errors.Wrapf(err, "reconstruct tree %d", treeInd)
		}
	}
	return trees, nil
}

//NodeWeights recomputes per-node sample weights for every tree of the
//ensemble against a fresh dataset. leafIndexes is the observations x trees
//table of leaf ordinals produced by the vendor's leaf-assignment oracle;
//sampleWeights carries one weight per observation, or nil to weigh every
//observation as one. Tree values and split metadata are untouched; one
//fresh weight array per tree is returned.
func (m *Model) NodeWeights(leafIndexes *tensor.Dense, sampleWeights []float64) ([][]float64, error) {
	shape := leafIndexes.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("leaf index table must be two-dimensional, got shape %v", shape)
	}
	nObservations, nTables := shape[0], shape[1]
	if nTables != len(m.Trees) {
		return nil, errors.Errorf("leaf index table covers %d trees, the model has %d",
			nTables, len(m.Trees))
	}
	if sampleWeights != nil && len(sampleWeights) != nObservations {
		return nil, errors.Errorf("%d observations but %d sample weights",
			nObservations, len(sampleWeights))
	}

	nodeWeights := make([][]float64, len(m.Trees))
	leafIndex := make([]int, nObservations)
	for treeInd, currentTree := range m.Trees {
		for p := 0; p < nObservations; p++ {
			value, err := leafIndexes.At(p, treeInd)
			if err != nil {
				return nil, errors.Wrapf(err, "leaf index table at (%d, %d)", p, treeInd)
			}
			leaf, err := leafOrdinal(value)
			if err != nil {
				return nil, errors.Wrapf(err, "leaf index table at (%d, %d)", p, treeInd)
			}
			leafIndex[p] = leaf
		}

		weights, err := obt.RecomputeWeights(currentTree, leafIndex, sampleWeights)
		if err != nil {
			return nil, errors.Wrapf(err, "recompute weights of tree %d", treeInd)
		}
		nodeWeights[treeInd] = weights
	}
	return nodeWeights, nil
}

func leafOrdinal(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	}
	return 0, errors.Errorf("leaf index of unsupported type %T", value)
}
