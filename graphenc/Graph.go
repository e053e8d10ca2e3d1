// Package graphenc encodes a circuit as a graph for graph learning.
// Each cell becomes a node with the features
//
//	[width, height, pins, standard, macro, io]
//
// where the last three are a one-hot encoding of the cell type, and
// each net becomes a directed clique over the distinct cells it
// connects, with every edge weighted by the net's weight.
package graphenc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goplace/circuit"
)

// NumFeatures is the number of features of each node
const NumFeatures = 6

const (
	widthFeature = iota
	heightFeature
	pinsFeature
	typeFeature
)

// Edge is a directed, weighted edge between two nodes
type Edge struct {
	From   int
	To     int
	Weight float64
}

// Graph is the encoding of a circuit. Row i of Nodes holds the
// features of the i-th cell of the circuit.
type Graph struct {
	Nodes *mat.Dense
	Edges []Edge
}

// Encode returns the graph of a circuit. Pin references that do not
// resolve to a cell are ignored.
func Encode(c *circuit.Circuit) (*Graph, error) {
	if len(c.Cells) == 0 {
		return nil, fmt.Errorf("encode: circuit has no cells")
	}

	nodes := mat.NewDense(len(c.Cells), NumFeatures, nil)
	for i, cell := range c.Cells {
		nodes.Set(i, widthFeature, cell.Width)
		nodes.Set(i, heightFeature, cell.Height)
		nodes.Set(i, pinsFeature, float64(len(cell.Pins)))

		switch cell.Type {
		case circuit.Standard:
			nodes.Set(i, typeFeature, 1)
		case circuit.Macro:
			nodes.Set(i, typeFeature+1, 1)
		default:
			nodes.Set(i, typeFeature+2, 1)
		}
	}

	index := c.Index()
	var edges []Edge
	for _, net := range c.Nets {
		cells := c.NetCells(net, index)
		for i := 0; i < len(cells); i++ {
			for j := i + 1; j < len(cells); j++ {
				edges = append(edges,
					Edge{From: cells[i], To: cells[j], Weight: net.Weight},
					Edge{From: cells[j], To: cells[i], Weight: net.Weight},
				)
			}
		}
	}

	return &Graph{Nodes: nodes, Edges: edges}, nil
}

// NumNodes returns the number of nodes in the graph
func (g *Graph) NumNodes() int {
	r, _ := g.Nodes.Dims()
	return r
}

// Adjacency returns the symmetrically normalized adjacency matrix with
// self loops, D^-1/2 (A + I) D^-1/2, where A sums the weights of the
// edges between each pair of nodes and D is the diagonal degree
// matrix of A + I.
func (g *Graph) Adjacency() *mat.Dense {
	n := g.NumNodes()
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	for _, e := range g.Edges {
		a.Set(e.From, e.To, a.At(e.From, e.To)+e.Weight)
	}

	invSqrtDeg := make([]float64, n)
	for i := 0; i < n; i++ {
		invSqrtDeg[i] = 1 / math.Sqrt(mat.Sum(a.RowView(i)))
	}
	d := mat.NewDiagDense(n, invSqrtDeg)

	var left, out mat.Dense
	left.Mul(d, a)
	out.Mul(&left, d)
	return &out
}

// Normalized returns a copy of the graph whose widths and heights are
// divided by the chip dimensions and whose pin counts are divided by
// the largest pin count, so that all features lie in [0, 1] for cells
// that fit on the chip.
func (g *Graph) Normalized(chipWidth, chipHeight float64) *Graph {
	nodes := mat.DenseCopyOf(g.Nodes)
	n := g.NumNodes()

	maxPins := mat.Max(nodes.ColView(pinsFeature))
	for i := 0; i < n; i++ {
		nodes.Set(i, widthFeature, nodes.At(i, widthFeature)/chipWidth)
		nodes.Set(i, heightFeature, nodes.At(i, heightFeature)/chipHeight)
		if maxPins > 0 {
			nodes.Set(i, pinsFeature, nodes.At(i, pinsFeature)/maxPins)
		}
	}

	edges := append([]Edge(nil), g.Edges...)
	return &Graph{Nodes: nodes, Edges: edges}
}
