package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/goplace/circuit"
	"github.com/samuelfneumann/goplace/environment"
)

var _ environment.Environment = &Env{}

func fourCells() *circuit.Circuit {
	cells := []circuit.Cell{
		{ID: "c0", Width: 20, Height: 20, Type: circuit.Macro},
		{ID: "c1", Width: 10, Height: 10, Type: circuit.Standard},
		{ID: "c2", Width: 10, Height: 10, Type: circuit.Standard},
		{ID: "c3", Width: 10, Height: 10, Type: circuit.Standard},
	}
	nets := []circuit.Net{{ID: "n0", Weight: 1,
		Pins: []string{"c0_0", "c1_0", "c2_0", "c3_0"}}}
	return circuit.New(cells, nets)
}

func newEnv(t *testing.T) *Env {
	e, err := New(fourCells(), Config{ChipWidth: 100, ChipHeight: 100,
		OverlapPenalty: DefaultOverlapPenalty})
	require.NoError(t, err)
	return e
}

func TestReset(t *testing.T) {
	e := newEnv(t)
	step := e.Reset()

	assert.True(t, step.First())
	assert.Len(t, step.Observation, StateSize)
	assert.Len(t, step.Available, ActionSize)
	for _, v := range step.Observation {
		assert.Zero(t, v)
	}
}

func TestEpisode(t *testing.T) {
	e := newEnv(t)
	e.Reset()

	step, err := e.Step(0)
	require.NoError(t, err)
	assert.True(t, step.Mid())
	assert.Equal(t, 1.0, step.Observation[0])
	assert.Equal(t, 0.25, step.Observation[ActionSize])
	assert.NotContains(t, step.Available, 0)
	assert.Len(t, step.Available, ActionSize-1)

	// A single placed cell has no wirelength or overlap
	assert.Zero(t, step.Reward)

	// Slots 0 and 22 have centres (5, 5) and (25, 25) on a 100x100
	// chip, and the cells do not overlap
	step, err = e.Step(22)
	require.NoError(t, err)
	assert.InDelta(t, -40.0/200, step.Reward, 1e-12)
	assert.InDelta(t, 40.0, e.Wirelength(), 1e-12)
	assert.Zero(t, e.Overlap())

	_, err = e.Step(22)
	assert.ErrorIs(t, err, ErrIllegalAction)
	_, err = e.Step(ActionSize)
	assert.ErrorIs(t, err, ErrIllegalAction)

	_, err = e.Step(55)
	require.NoError(t, err)
	step, err = e.Step(99)
	require.NoError(t, err)
	assert.True(t, step.Last())
	assert.Empty(t, step.Available)
	assert.Equal(t, 1.0, step.Observation[ActionSize])
	assert.Equal(t, 4, step.Number)

	_, err = e.Step(50)
	assert.Error(t, err)

	placed := e.Placement()
	for _, cell := range placed.Cells {
		assert.True(t, cell.Placed())
	}
	assert.InDelta(t, placed.HPWL(), e.Wirelength(), 1e-12)
}

func TestOverlapPenalty(t *testing.T) {
	e := newEnv(t)
	e.Reset()

	// The 20x20 macro centred in slot 0 covers [-5, 15]^2 and the
	// 10x10 cell centred in slot 1 covers [10, 20]x[0, 10]
	_, err := e.Step(0)
	require.NoError(t, err)
	step, err := e.Step(1)
	require.NoError(t, err)

	overlap := 5.0 * 10.0
	assert.InDelta(t, overlap, e.Overlap(), 1e-12)
	assert.InDelta(t, -10.0/200-overlap/10000, step.Reward, 1e-12)
}

func TestSlotCenter(t *testing.T) {
	e, err := New(fourCells(), Config{ChipWidth: 200, ChipHeight: 100})
	require.NoError(t, err)

	assert.Equal(t, circuit.Point{X: 10, Y: 5}, e.SlotCenter(0))
	assert.Equal(t, circuit.Point{X: 190, Y: 5}, e.SlotCenter(9))
	assert.Equal(t, circuit.Point{X: 30, Y: 15}, e.SlotCenter(11))
}

func TestResetClearsPlacement(t *testing.T) {
	e := newEnv(t)
	_, err := e.Step(3)
	require.NoError(t, err)

	step := e.Reset()
	assert.Len(t, step.Available, ActionSize)
	assert.Zero(t, e.Wirelength())
	for _, cell := range e.Placement().Cells {
		assert.False(t, cell.Placed())
	}
}

func TestNewRejects(t *testing.T) {
	_, err := New(fourCells(), Config{ChipWidth: 0, ChipHeight: 100})
	assert.Error(t, err)

	c := fourCells()
	c.Cells = make([]circuit.Cell, ActionSize+1)
	for i := range c.Cells {
		c.Cells[i] = circuit.Cell{ID: string(rune('a'+i%26)) +
			string(rune('a'+i/26)), Width: 1, Height: 1,
			Type: circuit.Standard}
	}
	c.Nets = nil
	_, err = New(c, Config{ChipWidth: 100, ChipHeight: 100})
	assert.ErrorIs(t, err, circuit.ErrInvalidCircuit)
}
