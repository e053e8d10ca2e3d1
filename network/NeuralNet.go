// Package network implements the parametric functions used by agents:
// multi-layered perceptrons built on Gorgonia computational graphs.
//
// A NeuralNet is bound to a single graph with a fixed input batch size.
// Agents keep a batch-1 network, compiled without gradients, for action
// selection and build batch-N clones, compiled with gradients bound to
// the learnables, for training. Parameters move between the two with
// Set, Params, and SetParams.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a differentiable function with trainable parameters
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the input node to BatchSize() rows of Features()
	// values each, in row-major order.
	SetInput([]float64) error

	Set(NeuralNet) error

	// Params returns a copy of every learnable's values in the order
	// given by Learnables.
	Params() [][]float64
	SetParams([][]float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Prediction returns the output nodes. Output returns their values
	// after the graph has been run.
	Prediction() []*G.Node
	Output() []G.Value
}
