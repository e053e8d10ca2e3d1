package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Arch determines which output heads an MLP has and how they are
// combined into predictions.
type Arch string

const (
	// Plain has a single linear head with Outputs() units
	Plain Arch = "Plain"

	// Dueling has a state-value stream and an advantage stream that are
	// combined as Q = V + (A - mean(A))
	Dueling Arch = "Dueling"

	// PolicyValue has a logits head with Outputs() units and a scalar
	// state-value head
	PolicyValue Arch = "PolicyValue"
)

// multiHeadMLP implements a multi-layered perceptron with a shared
// trunk of hidden layers followed by one or more output heads.
type multiHeadMLP struct {
	g          *G.ExprGraph
	input      *G.Node
	trunk      []Layer
	heads      [][]Layer
	arch       Arch
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for cloning
	hiddenSizes []int
	biases      []bool
	activations []*Activation
	streamSizes []int

	learnables G.Nodes
	model      []G.ValueGrad

	predictions []*G.Node
	predVals    []G.Value
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// with a single linear output layer of outputs units. The graph
// parameter g is populated with the MLP.
//
// The MLP has len(hiddenSizes) + 1 layers. For index i, hiddenSizes[i]
// is the number of nodes in hidden layer i, biases[i] is true if the
// hidden layer has a bias unit, and activations[i] is the activation of
// hidden layer i. The final layer always has a bias unit and no
// activation. The parameter init determines the weight initialization
// scheme.
func NewMultiHeadMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	return newMultiHeadMLP(Plain, features, batch, outputs, g, hiddenSizes,
		biases, init, activations, nil)
}

// NewDuelingMLP creates a dueling architecture MLP. The hidden layers
// described by hiddenSizes, biases, and activations are shared. The
// shared features are then fed to a state-value stream and an
// advantage stream, each with ReLU hidden layers of sizes
// streamSizes, and the streams are combined into outputs action
// values.
func NewDuelingMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, streamSizes []int) (NeuralNet, error) {
	return newMultiHeadMLP(Dueling, features, batch, outputs, g, hiddenSizes,
		biases, init, activations, streamSizes)
}

// NewPolicyValueMLP creates an MLP with a shared trunk and two linear
// heads: Prediction()[0] holds outputs logits per row and
// Prediction()[1] holds a single state value per row.
func NewPolicyValueMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	return newMultiHeadMLP(PolicyValue, features, batch, outputs, g,
		hiddenSizes, biases, init, activations, nil)
}

func newMultiHeadMLP(arch Arch, features, batch, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, streamSizes []int) (*multiHeadMLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newmultiheadmlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newmultiheadmlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	if features < 1 || batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newmultiheadmlp: features (%d), batch (%d) "+
			"and outputs (%d) must be positive", features, batch, outputs)
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	trunk := addfcLayers(g, hiddenSizes, biases, activations, init,
		features, "trunk")
	trunkOut := features
	if len(hiddenSizes) > 0 {
		trunkOut = hiddenSizes[len(hiddenSizes)-1]
	}

	// head adds a stream of ReLU hidden layers followed by a linear
	// output layer of size out
	head := func(name string, hidden []int, out int) []Layer {
		sizes := append(append([]int{}, hidden...), out)
		b := make([]bool, len(sizes))
		acts := make([]*Activation, len(sizes))
		for i := range sizes {
			b[i] = true
			acts[i] = ReLU()
		}
		acts[len(acts)-1] = Identity()
		return addfcLayers(g, sizes, b, acts, init, trunkOut, name)
	}

	var heads [][]Layer
	switch arch {
	case Plain:
		heads = [][]Layer{head("out", nil, outputs)}
	case Dueling:
		heads = [][]Layer{
			head("value", streamSizes, 1),
			head("advantage", streamSizes, outputs),
		}
	case PolicyValue:
		heads = [][]Layer{
			head("logits", nil, outputs),
			head("value", nil, 1),
		}
	default:
		return nil, fmt.Errorf("newmultiheadmlp: unknown architecture %q",
			arch)
	}

	net := &multiHeadMLP{
		g:           g,
		input:       input,
		trunk:       trunk,
		heads:       heads,
		arch:        arch,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
		streamSizes: streamSizes,
	}
	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newmultiheadmlp: could not compute "+
			"forward pass: %v", err)
	}
	return net, nil
}

// fwd builds the forward pass from the input node to the predictions
func (m *multiHeadMLP) fwd() error {
	h := m.input
	var err error
	for i, l := range m.trunk {
		if h, err = l.fwd(h); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	outs := make([]*G.Node, len(m.heads))
	for i, head := range m.heads {
		x := h
		for j, l := range head {
			if x, err = l.fwd(x); err != nil {
				return fmt.Errorf("fwd: could not compute forward pass of "+
					"head %v layer %v: %v", i, j, err)
			}
		}
		outs[i] = x
	}

	if m.arch == Dueling {
		q, err := duel(m.g, outs[0], outs[1], m.numOutputs)
		if err != nil {
			return err
		}
		outs = []*G.Node{q}
	}

	m.predictions = outs
	m.predVals = make([]G.Value, len(outs))
	for i := range outs {
		G.Read(outs[i], &m.predVals[i])
	}
	return nil
}

// duel combines a (batch, 1) state-value node and a (batch, actions)
// advantage node into action values Q = V + (A - mean(A)). The mean
// over actions and the spread of V over actions are both matrix
// products with constant matrices.
func duel(g *G.ExprGraph, v, a *G.Node, actions int) (*G.Node, error) {
	ones := make([]float64, actions)
	for i := range ones {
		ones[i] = 1
	}
	spread := G.NewMatrix(g, tensor.Float64, G.WithShape(1, actions),
		G.WithName("duelSpread"), G.WithValue(tensor.New(
			tensor.WithShape(1, actions), tensor.WithBacking(ones))))

	avg := make([]float64, actions*actions)
	for i := range avg {
		avg[i] = 1 / float64(actions)
	}
	mean := G.NewMatrix(g, tensor.Float64, G.WithShape(actions, actions),
		G.WithName("duelMean"), G.WithValue(tensor.New(
			tensor.WithShape(actions, actions), tensor.WithBacking(avg))))

	vs, err := G.Mul(v, spread)
	if err != nil {
		return nil, fmt.Errorf("duel: could not spread state values: %v", err)
	}
	am, err := G.Mul(a, mean)
	if err != nil {
		return nil, fmt.Errorf("duel: could not average advantages: %v", err)
	}
	centred, err := G.Sub(a, am)
	if err != nil {
		return nil, fmt.Errorf("duel: could not centre advantages: %v", err)
	}
	return G.Add(vs, centred)
}

// Graph returns the computational graph of the multiHeadMLP.
func (m *multiHeadMLP) Graph() *G.ExprGraph {
	return m.g
}

// CloneWithBatch returns a copy of the network on a new graph with a
// new input batch size. The copy starts with the same parameters.
func (m *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	net, err := newMultiHeadMLP(m.arch, m.numInputs, batchSize,
		m.numOutputs, G.NewGraph(), m.hiddenSizes, m.biases, G.Zeroes(),
		m.activations, m.streamSizes)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	if err := net.Set(m); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy "+
			"parameters: %v", err)
	}
	return net, nil
}

// BatchSize returns the number of rows the input node holds
func (m *multiHeadMLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input row
func (m *multiHeadMLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs of the first prediction head
func (m *multiHeadMLP) Outputs() int {
	return m.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass.
func (m *multiHeadMLP) SetInput(input []float64) error {
	if len(input) != m.numInputs*m.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.numInputs*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Set sets the weights of the network to be equal to the weights of
// another network with the same architecture.
func (m *multiHeadMLP) Set(source NeuralNet) error {
	return m.SetParams(source.Params())
}

// Params returns a copy of the values of each learnable node
func (m *multiHeadMLP) Params() [][]float64 {
	nodes := m.Learnables()
	params := make([][]float64, len(nodes))
	for i, node := range nodes {
		data := node.Value().Data().([]float64)
		params[i] = append([]float64(nil), data...)
	}
	return params
}

// SetParams sets the values of each learnable node. The values are
// copied.
func (m *multiHeadMLP) SetParams(params [][]float64) error {
	nodes := m.Learnables()
	if len(params) != len(nodes) {
		return fmt.Errorf("setparams: invalid number of learnables"+
			"\n\twant(%d)\n\thave(%d)", len(nodes), len(params))
	}
	for i, node := range nodes {
		shape := node.Shape().Clone()
		if len(params[i]) != shape.TotalSize() {
			return fmt.Errorf("setparams: learnable %v has %d values, "+
				"want %d", node.Name(), len(params[i]), shape.TotalSize())
		}
		backing := append([]float64(nil), params[i]...)
		value := tensor.New(tensor.WithShape(shape...),
			tensor.WithBacking(backing))
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("setparams: could not set %v: %v", node.Name(),
				err)
		}
	}
	return nil
}

// Learnables returns the learnable nodes, trunk first and then each
// head in order.
func (m *multiHeadMLP) Learnables() G.Nodes {
	if m.learnables == nil {
		var learnables G.Nodes
		add := func(layers []Layer) {
			for _, l := range layers {
				learnables = append(learnables, l.Weights())
				if bias := l.Bias(); bias != nil {
					learnables = append(learnables, bias)
				}
			}
		}
		add(m.trunk)
		for _, head := range m.heads {
			add(head)
		}
		m.learnables = learnables
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients.
func (m *multiHeadMLP) Model() []G.ValueGrad {
	if m.model == nil {
		learnables := m.Learnables()
		m.model = make([]G.ValueGrad, len(learnables))
		for i, node := range learnables {
			m.model[i] = node
		}
	}
	return m.model
}

// Prediction returns the output nodes of the network
func (m *multiHeadMLP) Prediction() []*G.Node {
	return m.predictions
}

// Output returns the values of the output nodes, which are populated
// each time the graph is run.
func (m *multiHeadMLP) Output() []G.Value {
	return m.predVals
}
