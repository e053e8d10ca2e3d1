// Package gnn implements a graph convolutional placement model. Given
// the graph of a circuit, the model predicts a normalized (x, y)
// centre for every cell:
//
//	H_0     = relu(X W_in + b_in)
//	H_{l+1} = relu(Â (H_l W_l + b_l))
//	P       = sigmoid(H_L W_out + b_out)
//
// where Â is the normalized adjacency of the graph. The model is fit
// to a single circuit by minimizing
//
//	mean((P - anchors)²) + α Σ_edges w ‖p_i - p_j‖² / |E|
//
// which pulls cells towards their anchor positions while keeping
// connected cells close.
package gnn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/circuit"
	"github.com/samuelfneumann/goplace/graphenc"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

// Outputs is the number of outputs per node, the normalized x and y
// coordinates of the cell centre
const Outputs = 2

// layer is a single affine map of the model
type layer struct {
	weights *G.Node
	bias    *G.Node
}

func newLayer(g *G.ExprGraph, in, out int, init G.InitWFn,
	name string) layer {
	return layer{
		weights: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(name+"W"), G.WithInit(init)),
		bias: G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
			G.WithName(name+"B"), G.WithInit(G.Zeroes())),
	}
}

func (l layer) fwd(x *G.Node) *G.Node {
	x = G.Must(G.Mul(x, l.weights))
	return G.Must(G.BroadcastAdd(x, l.bias, nil, []byte{0}))
}

// Model is a graph convolutional network over the graph of one
// circuit, together with its training loss
type Model struct {
	config Config
	nodes  int

	g      *G.ExprGraph
	layers []layer

	prediction *G.Node
	predVal    G.Value
	loss       G.Value

	vm     G.VM
	solver solver.Optimizer
}

// New returns a new Model over the graph of a circuit. Anchors holds
// the normalized centre each cell is pulled towards, one row per cell.
func New(c Config, graph *graphenc.Graph, anchors *mat.Dense) (*Model,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	n := graph.NumNodes()
	if r, cols := anchors.Dims(); r != n || cols != Outputs {
		return nil, fmt.Errorf("new: anchors have shape (%d, %d), want "+
			"(%d, %d)", r, cols, n, Outputs)
	}

	g := G.NewGraph()
	init := c.InitWFn.InitWFn()

	features := constant(g, "features", graph.Nodes)
	adjacency := constant(g, "adjacency", graph.Adjacency())
	target := constant(g, "anchors", anchors)

	m := &Model{
		config: c,
		nodes:  n,
		g:      g,
	}

	in := newLayer(g, graphenc.NumFeatures, c.HiddenDim, init, "in")
	m.layers = append(m.layers, in)
	h := G.Must(G.Rectify(in.fwd(features)))

	for i := 0; i < c.NumLayers; i++ {
		conv := newLayer(g, c.HiddenDim, c.HiddenDim, init,
			fmt.Sprintf("conv%d", i))
		m.layers = append(m.layers, conv)
		h = G.Must(G.Mul(adjacency, conv.fwd(h)))
		h = G.Must(G.Rectify(h))
	}

	out := newLayer(g, c.HiddenDim, Outputs, init, "out")
	m.layers = append(m.layers, out)
	m.prediction = G.Must(G.Sigmoid(out.fwd(h)))
	G.Read(m.prediction, &m.predVal)

	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(m.prediction,
		target))))))
	if len(graph.Edges) > 0 && c.SmoothCoef > 0 {
		incidence := constant(g, "incidence", weightedIncidence(graph))
		diffs := G.Must(G.Mul(incidence, m.prediction))
		smooth := G.Must(G.Sum(G.Must(G.Square(diffs))))

		coef := G.NewScalar(g, tensor.Float64, G.WithName("smoothCoef"),
			G.WithValue(c.SmoothCoef/float64(len(graph.Edges))))
		loss = G.Must(G.Add(loss, G.Must(G.Mul(coef, smooth))))
	}
	G.Read(loss, &m.loss)

	if _, err := G.Grad(loss, m.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	m.vm = G.NewTapeMachine(g, G.BindDualValues(m.Learnables()...))
	m.solver = c.Solver.Create()

	return m, nil
}

// constant adds a node holding a copy of a matrix to g
func constant(g *G.ExprGraph, name string, m mat.Matrix) *G.Node {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	value := tensor.New(tensor.WithShape(r, c), tensor.WithBacking(data))
	return G.NewMatrix(g, tensor.Float64, G.WithShape(r, c),
		G.WithName(name), G.WithValue(value))
}

// weightedIncidence returns the |E| x n matrix whose row for edge
// (i, j, w) holds √w at column i and -√w at column j, so that the
// squared norm of its product with the predictions is the weighted
// sum of squared edge lengths
func weightedIncidence(graph *graphenc.Graph) *mat.Dense {
	b := mat.NewDense(len(graph.Edges), graph.NumNodes(), nil)
	for e, edge := range graph.Edges {
		w := math.Sqrt(edge.Weight)
		b.Set(e, edge.From, b.At(e, edge.From)+w)
		b.Set(e, edge.To, b.At(e, edge.To)-w)
	}
	return b
}

// Anchors returns the normalized centres of the placed cells of a
// circuit. Unplaced cells are anchored to the centre of the chip.
func Anchors(c *circuit.Circuit, chipWidth, chipHeight float64) *mat.Dense {
	anchors := mat.NewDense(len(c.Cells), Outputs, nil)
	for i, cell := range c.Cells {
		x, y := 0.5, 0.5
		if cell.Placed() {
			centre := cell.Center()
			x, y = centre.X/chipWidth, centre.Y/chipHeight
		}
		anchors.Set(i, 0, x)
		anchors.Set(i, 1, y)
	}
	return anchors
}

// Step performs one gradient step and returns the loss before the
// step and the gradient norm before clipping
func (m *Model) Step() (loss, gradNorm float64) {
	if err := m.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("step: could not run model: %v", err))
	}
	gradNorm, err := network.ClipGradNorm(m.Model(), m.config.MaxGradNorm)
	if err != nil {
		panic(fmt.Sprintf("step: %v", err))
	}
	if err := m.solver.Step(m.Model()); err != nil {
		panic(fmt.Sprintf("step: could not step solver: %v", err))
	}
	loss = m.loss.Data().(float64)
	m.vm.Reset()
	return loss, gradNorm
}

// Fit performs epochs gradient steps and returns the loss of each
func (m *Model) Fit(epochs int) []float64 {
	losses := make([]float64, epochs)
	for i := range losses {
		losses[i], _ = m.Step()
	}
	return losses
}

// Predict returns the current loss and the predicted normalized cell
// centres, one row per cell
func (m *Model) Predict() (float64, *mat.Dense) {
	if err := m.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("predict: could not run model: %v", err))
	}
	defer m.vm.Reset()

	data := append([]float64(nil), m.predVal.Data().([]float64)...)
	return m.loss.Data().(float64), mat.NewDense(m.nodes, Outputs, data)
}

// Place returns a copy of c with every cell centred at its predicted
// position on a chip of the given dimensions
func (m *Model) Place(c *circuit.Circuit, chipWidth,
	chipHeight float64) (*circuit.Circuit, error) {
	if len(c.Cells) != m.nodes {
		return nil, fmt.Errorf("place: circuit has %d cells, model has %d",
			len(c.Cells), m.nodes)
	}
	_, pred := m.Predict()

	placed := c.Clone()
	for i := range placed.Cells {
		cell := &placed.Cells[i]
		cell.Position = &circuit.Point{
			X: pred.At(i, 0)*chipWidth - cell.Width/2,
			Y: pred.At(i, 1)*chipHeight - cell.Height/2,
		}
	}
	return placed, nil
}

// Learnables returns the learnable nodes of the model
func (m *Model) Learnables() G.Nodes {
	nodes := make(G.Nodes, 0, 2*len(m.layers))
	for _, l := range m.layers {
		nodes = append(nodes, l.weights, l.bias)
	}
	return nodes
}

// Model returns the learnable nodes with their gradients
func (m *Model) Model() []G.ValueGrad {
	learnables := m.Learnables()
	model := make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		model[i] = node
	}
	return model
}

// Params returns a copy of the values of each learnable node
func (m *Model) Params() [][]float64 {
	nodes := m.Learnables()
	params := make([][]float64, len(nodes))
	for i, node := range nodes {
		params[i] = append([]float64(nil), node.Value().Data().([]float64)...)
	}
	return params
}

// SetParams sets the values of each learnable node
func (m *Model) SetParams(params [][]float64) error {
	nodes := m.Learnables()
	if len(params) != len(nodes) {
		return fmt.Errorf("setparams: model has %d learnables, got %d",
			len(nodes), len(params))
	}
	for i, node := range nodes {
		shape := node.Shape().Clone()
		if len(params[i]) != shape.TotalSize() {
			return fmt.Errorf("setparams: learnable %v has %d values, want %d",
				node.Name(), len(params[i]), shape.TotalSize())
		}
		value := tensor.New(tensor.WithShape(shape...),
			tensor.WithBacking(append([]float64(nil), params[i]...)))
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("setparams: could not set %v: %v", node.Name(),
				err)
		}
	}
	return nil
}

// StateDict returns the parameters of the model and the state of its
// optimizer. The weights of the model do not depend on the circuit, so
// the StateDict can be loaded into a model over any circuit.
func (m *Model) StateDict() *agent.StateDict {
	s := agent.NewStateDict(agent.GNN, graphenc.NumFeatures, Outputs)
	s.Params["gnn"] = m.Params()
	s.Optimizers["gnn"] = m.solver.State()
	s.Scalars["hidden_dim"] = float64(m.config.HiddenDim)
	s.Scalars["num_layers"] = float64(m.config.NumLayers)
	return s
}

// LoadStateDict restores a snapshot returned by StateDict
func (m *Model) LoadStateDict(s *agent.StateDict) error {
	if err := s.Check(agent.GNN, graphenc.NumFeatures, Outputs); err != nil {
		return fmt.Errorf("loadstatedict: %w", err)
	}
	params, err := s.Param("gnn")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	optimizer, err := s.Optimizer("gnn")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	if err := m.SetParams(params); err != nil {
		return fmt.Errorf("loadstatedict: %w: %v", agent.ErrDimensionMismatch,
			err)
	}
	return m.solver.SetState(optimizer)
}

// Close releases the model's virtual machine
func (m *Model) Close() error {
	return m.vm.Close()
}
