package gnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/circuit"
	"github.com/samuelfneumann/goplace/graphenc"
)

func testCircuit(n int) *circuit.Circuit {
	cells := make([]circuit.Cell, n)
	pins := make([]string, n)
	for i := range cells {
		id := string(rune('a' + i))
		cells[i] = circuit.Cell{ID: id, Width: 10, Height: 10,
			Type: circuit.Standard, Pins: []circuit.Pin{{}}}
		pins[i] = id + "_0"
	}
	cells[0].Type = circuit.Macro
	cells[0].Position = &circuit.Point{X: 10, Y: 70}
	return circuit.New(cells, []circuit.Net{{ID: "n", Weight: 1, Pins: pins}})
}

func newModel(t *testing.T, c *circuit.Circuit, config Config) *Model {
	graph, err := graphenc.Encode(c)
	require.NoError(t, err)
	m, err := New(config, graph.Normalized(100, 100), Anchors(c, 100, 100))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAnchors(t *testing.T) {
	anchors := Anchors(testCircuit(2), 100, 200)
	want := mat.NewDense(2, 2, []float64{
		0.15, 0.375,
		0.5, 0.5,
	})
	assert.True(t, mat.EqualApprox(want, anchors, 1e-12))
}

func TestWeightedIncidence(t *testing.T) {
	graph := &graphenc.Graph{
		Nodes: mat.NewDense(3, graphenc.NumFeatures, nil),
		Edges: []graphenc.Edge{{From: 0, To: 2, Weight: 4}},
	}
	b := weightedIncidence(graph)
	assert.Equal(t, []float64{2, 0, -2}, b.RawRowView(0))
}

func TestFitReducesLoss(t *testing.T) {
	m := newModel(t, testCircuit(4), DefaultConfig(1e-2, 8, 2))

	losses := m.Fit(60)
	require.Len(t, losses, 60)
	assert.Less(t, losses[len(losses)-1], losses[0])

	loss, pred := m.Predict()
	assert.Positive(t, loss)
	r, c := pred.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, Outputs, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.True(t, pred.At(i, j) > 0 && pred.At(i, j) < 1)
		}
	}
}

func TestPlace(t *testing.T) {
	c := testCircuit(3)
	m := newModel(t, c, DefaultConfig(1e-3, 4, 1))

	placed, err := m.Place(c, 100, 100)
	require.NoError(t, err)
	_, pred := m.Predict()
	for i, cell := range placed.Cells {
		require.True(t, cell.Placed())
		assert.InDelta(t, pred.At(i, 0)*100, cell.Center().X, 1e-9)
		assert.InDelta(t, pred.At(i, 1)*100, cell.Center().Y, 1e-9)
	}

	_, err = m.Place(testCircuit(4), 100, 100)
	assert.Error(t, err)
}

func TestStateDictTransfersAcrossCircuits(t *testing.T) {
	config := DefaultConfig(1e-2, 8, 2)
	src := newModel(t, testCircuit(4), config)
	src.Fit(5)

	dst := newModel(t, testCircuit(4), config)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Params(), dst.Params())

	_, want := src.Predict()
	_, got := dst.Predict()
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// The weights do not depend on the number of cells
	other := newModel(t, testCircuit(6), config)
	assert.NoError(t, other.LoadStateDict(src.StateDict()))
}

func TestLoadStateDictMismatch(t *testing.T) {
	src := newModel(t, testCircuit(3), DefaultConfig(1e-3, 8, 2))
	dst := newModel(t, testCircuit(3), DefaultConfig(1e-3, 4, 2))
	err := dst.LoadStateDict(src.StateDict())
	assert.ErrorIs(t, err, agent.ErrDimensionMismatch)

	wrongType := agent.NewStateDict(agent.DeepQ, graphenc.NumFeatures,
		Outputs)
	assert.ErrorIs(t, dst.LoadStateDict(wrongType),
		agent.ErrDimensionMismatch)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig(1e-3, 64, 3).Validate())

	c := DefaultConfig(1e-3, 0, 3)
	assert.Error(t, c.Validate())

	c = DefaultConfig(1e-3, 64, 3)
	c.Solver = nil
	assert.Error(t, c.Validate())

	_, err := New(DefaultConfig(1e-3, 4, 1), &graphenc.Graph{
		Nodes: mat.NewDense(2, graphenc.NumFeatures, nil),
	}, mat.NewDense(3, Outputs, nil))
	assert.Error(t, err)
}
