package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/tarstars/oblivious_shap/cbmodel"
	"github.com/tarstars/oblivious_shap/obt"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	obt.HandleError(err)
	defer func() { obt.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	obt.HandleError(decoder.Decode(out))
}

type InspectConfig struct {
	ModelFileName string `json:"filename_model"`
}

func inspect(srcConfig string) {
	var inspectConfig InspectConfig
	decodeConfig(srcConfig, &inspectConfig)

	model, err := cbmodel.Load(inspectConfig.ModelFileName)
	obt.HandleError(err)

	log.Print("objective: ", model.Objective)
	log.Print("task: ", model.Task)
	log.Print("trees: ", model.NTrees())
	log.Print("depth: ", model.Depth)
	log.Print("classes per leaf: ", model.NClass)
	log.Print("named float features: ", len(model.FeatureNames))
	for treeInd, currentTree := range model.Trees {
		log.Printf("tree %d: depth %d, %d nodes, root weight %g",
			treeInd, currentTree.Depth, currentTree.NNodes(), currentTree.Weights[0])
	}
}

type GraphConfig struct {
	ModelFileName     string `json:"filename_model"`
	FigureType        string `json:"figure_type"`
	PicturesDirectory string `json:"pictures_directory"`
	DumpPrefix        string `json:"dump_prefix"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	model, err := cbmodel.Load(graphConfig.ModelFileName)
	obt.HandleError(err)

	obt.HandleError(obt.RenderTrees(model.Trees,
		graphConfig.DumpPrefix, graphConfig.FigureType, graphConfig.PicturesDirectory))
}

type ReweightConfig struct {
	ModelFileName         string `json:"filename_model"`
	LeafIndexesFileName   string `json:"filename_leaf_indexes"`
	SampleWeightsFileName string `json:"filename_sample_weights"`
	NodeWeightsFileName   string `json:"filename_node_weights"`
	NodeWeightsNpy        string `json:"filename_node_weights_npy"`
}

//NodeWeightsDump is the JSON layout of recomputed node weights, one weight
//array per tree of the ensemble.
type NodeWeightsDump struct {
	Objective string
	Weights   [][]float64
}

func reweight(srcConfig string) {
	var reweightConfig ReweightConfig
	decodeConfig(srcConfig, &reweightConfig)

	model, err := cbmodel.Load(reweightConfig.ModelFileName)
	obt.HandleError(err)

	log.Print("\ttry to load leaf indexes <", reweightConfig.LeafIndexesFileName, ">")
	leafIndexes, err := obt.ReadLeafIndexes(reweightConfig.LeafIndexesFileName)
	obt.HandleError(err)

	var sampleWeights []float64
	if reweightConfig.SampleWeightsFileName != "" {
		log.Print("\ttry to load sample weights <", reweightConfig.SampleWeightsFileName, ">")
		sampleWeights, err = obt.ReadVector(reweightConfig.SampleWeightsFileName)
		obt.HandleError(err)
	}

	nodeWeights, err := model.NodeWeights(leafIndexes, sampleWeights)
	obt.HandleError(err)

	destination, err := os.Create(reweightConfig.NodeWeightsFileName)
	obt.HandleError(err)
	defer func() { obt.HandleError(destination.Close()) }()

	bytesResult, err := json.MarshalIndent(NodeWeightsDump{
		Objective: model.Objective,
		Weights:   nodeWeights,
	}, "", "  ")
	obt.HandleError(err)
	_, err = destination.Write(bytesResult)
	obt.HandleError(err)

	if reweightConfig.NodeWeightsNpy != "" {
		writeNodeWeightsNpy(reweightConfig.NodeWeightsNpy, nodeWeights)
	}
}

//writeNodeWeightsNpy dumps the weights as a trees x nodes npy matrix.
//All trees of a catboost ensemble share one depth, so the rows line up.
func writeNodeWeightsNpy(fileName string, nodeWeights [][]float64) {
	if len(nodeWeights) == 0 {
		return
	}
	nNodes := len(nodeWeights[0])
	for treeInd, weights := range nodeWeights {
		if len(weights) != nNodes {
			log.Print("trees have different node counts, skip npy dump of tree ", treeInd)
			return
		}
	}

	weightMatrix := mat.NewDense(len(nodeWeights), nNodes, nil)
	for treeInd, weights := range nodeWeights {
		weightMatrix.SetRow(treeInd, weights)
	}

	dst, err := os.Create(fileName)
	obt.HandleError(err)
	defer func() { obt.HandleError(dst.Close()) }()
	obt.HandleError(npyio.Write(dst, weightMatrix))
}

func main() {
	runMode := flag.String("mode", "inspect", "you can select either 'inspect', 'graph' or 'reweight' modes")
	config := flag.String("config", "oblivious_config.json", "a config file for the run of the program")

	flag.Parse()

	command, ok := map[string]func(string){
		"inspect":  inspect,
		"graph":    graph,
		"reweight": reweight,
	}[*runMode]
	if !ok {
		log.Fatal("unknown mode ", *runMode)
	}
	command(*config)
}
