package obt

import (
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/pkg/errors"
)

//InternalDescription returns the description of an internal node for tree
//rendering as a graph.
func (t *BinaryTree) InternalDescription(index int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("#", t.Weights[index]))
	sb.WriteString(fmt.Sprintln("id: ", index))
	sb.WriteString(fmt.Sprintf("f_%d < %6.5f (%s)",
		t.SplitFeatures[index], t.SplitBorders[index], t.SplitKinds[index]))
	return sb.String()
}

//LeafDescription returns the description of a leaf node for tree rendering
//as a graph.
func (t *BinaryTree) LeafDescription(index int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", index))
	sb.WriteString("[")
	for class := 0; class < t.NClass; class++ {
		sb.WriteString(fmt.Sprintf("  %6.2f,\n", t.Values.At(index, class)))
	}
	sb.WriteString("]\n")
	sb.WriteString(fmt.Sprintln(t.Weights[index]))
	return sb.String()
}

func recurrentDraw(g *cgraph.Graph, tree *BinaryTree, nodeNumber int, parentNode *cgraph.Node) error {
	currentNode, err := g.CreateNode(fmt.Sprint(nodeNumber))
	if err != nil {
		return errors.Wrapf(err, "create graph node %d", nodeNumber)
	}

	if parentNode != nil {
		if _, err := g.CreateEdge("", parentNode, currentNode); err != nil {
			return errors.Wrapf(err, "create graph edge to node %d", nodeNumber)
		}
	}

	if tree.IsLeaf(nodeNumber) {
		currentNode.Set("label", tree.LeafDescription(nodeNumber))
		currentNode.Set("shape", "box")
		return nil
	}

	currentNode.Set("label", tree.InternalDescription(nodeNumber))
	if err := recurrentDraw(g, tree, tree.ChildrenLeft[nodeNumber], currentNode); err != nil {
		return err
	}
	return recurrentDraw(g, tree, tree.ChildrenRight[nodeNumber], currentNode)
}

//DrawGraph lays the materialized tree out as a graphviz graph.
func (t *BinaryTree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create graph")
	}

	if err := recurrentDraw(graph, t, 0, nil); err != nil {
		return nil, nil, err
	}

	return graphViz, graph, nil
}

//RenderTrees renders every tree of an ensemble into picturesDirectory as
//dumpPrefix_NNNNN.figureType files. Supported figure types are png, svg
//and jpg.
func RenderTrees(trees []*BinaryTree, dumpPrefix, figureType, picturesDirectory string) error {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return errors.Errorf("unsupported figure type %q", figureType)
	}

	for graphInd, currentTree := range trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		graphViz, graph, err := currentTree.DrawGraph()
		if err != nil {
			return errors.Wrapf(err, "draw tree %d", graphInd)
		}
		err = graphViz.RenderFilename(graph, graphvizType, path.Join(picturesDirectory, filename))
		if err != nil {
			return errors.Wrapf(err, "render tree %d", graphInd)
		}
	}
	return nil
}
