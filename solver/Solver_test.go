package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type valueGrad struct {
	value, grad *tensor.Dense
}

func (v valueGrad) Value() G.Value          { return v.value }
func (v valueGrad) Grad() (G.Value, error) { return v.grad, nil }

func newModel(weights, grads []float64) []G.ValueGrad {
	return []G.ValueGrad{valueGrad{
		value: tensor.New(tensor.WithShape(len(weights)),
			tensor.WithBacking(weights)),
		grad: tensor.New(tensor.WithShape(len(grads)),
			tensor.WithBacking(grads)),
	}}
}

func weights(model []G.ValueGrad) []float64 {
	return model[0].Value().Data().([]float64)
}

func TestVanillaStep(t *testing.T) {
	s, err := NewVanilla(0.1)
	require.NoError(t, err)
	opt := s.Create()

	model := newModel([]float64{1, 2}, []float64{1, -2})
	require.NoError(t, opt.Step(model))
	assert.InDeltaSlice(t, []float64{0.9, 2.2}, weights(model), 1e-12)
	assert.Equal(t, 1, opt.State().Steps)

	_, err = NewVanilla(0)
	assert.Error(t, err)
}

func TestAdamFirstStepMovesByStepSize(t *testing.T) {
	s, err := NewDefaultAdam(0.01)
	require.NoError(t, err)
	opt := s.Create()

	model := newModel([]float64{1, 1}, []float64{3, -0.5})
	require.NoError(t, opt.Step(model))
	assert.InDeltaSlice(t, []float64{0.99, 1.01}, weights(model), 1e-6)
}

func TestAdamStateRoundTrip(t *testing.T) {
	s, err := NewDefaultAdam(0.01)
	require.NoError(t, err)

	opt := s.Create()
	model := newModel([]float64{1, 1}, []float64{3, -0.5})
	for i := 0; i < 3; i++ {
		require.NoError(t, opt.Step(model))
	}

	restored := s.Create()
	require.NoError(t, restored.SetState(opt.State()))
	assert.Equal(t, opt.State(), restored.State())

	// Both optimizers take the same next step
	a := newModel([]float64{0, 0}, []float64{1, 2})
	b := newModel([]float64{0, 0}, []float64{1, 2})
	require.NoError(t, opt.Step(a))
	require.NoError(t, restored.Step(b))
	assert.Equal(t, weights(a), weights(b))

	vanilla, err := NewVanilla(0.1)
	require.NoError(t, err)
	assert.Error(t, vanilla.Create().SetState(opt.State()))
}

func TestAdamRejectsChangedModel(t *testing.T) {
	s, err := NewDefaultAdam(0.01)
	require.NoError(t, err)
	opt := s.Create()

	require.NoError(t, opt.Step(newModel([]float64{1}, []float64{1})))
	assert.Error(t, opt.Step(newModel([]float64{1, 2}, []float64{1, 1})))
}

func TestSolverJSON(t *testing.T) {
	s, err := NewAdam(0.5, 1e-7, 0.8, 0.9)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Solver
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *s, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"Type": "SGD", "Config": {}}`),
		&decoded))
}
