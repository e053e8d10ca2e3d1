// Package placement implements the chip placement environment. The
// chip is divided into a GridSize x GridSize grid of slots, and on
// each step the next unplaced cell, in the order the circuit lists
// them, is centred in the slot chosen by the action. Slots hold at
// most one cell, so the available actions are the empty slots.
//
// The state is the occupancy of every slot followed by the fraction of
// cells placed. The reward of a step is the negative increase in
// half-perimeter wirelength normalized by the chip's half perimeter,
// minus a penalty on the increase in overlap area normalized by the
// chip's area.
package placement

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/goplace/circuit"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// Dimensions of the placement grid, state, and action space
const (
	GridSize   = 10
	ActionSize = GridSize * GridSize
	StateSize  = ActionSize + 1
)

// DefaultOverlapPenalty is the weight of the overlap term of the
// reward
const DefaultOverlapPenalty = 1.0

// ErrIllegalAction is returned when an action is outside the action
// space or addresses an occupied slot
var ErrIllegalAction = errors.New("illegal action")

// Config configures an Env
type Config struct {
	ChipWidth      float64
	ChipHeight     float64
	OverlapPenalty float64
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.ChipWidth <= 0 || c.ChipHeight <= 0 {
		return fmt.Errorf("chip dimensions must be positive, got %vx%v",
			c.ChipWidth, c.ChipHeight)
	}
	if c.OverlapPenalty < 0 {
		return fmt.Errorf("overlap penalty must be non-negative")
	}
	return nil
}

// Env is the chip placement environment. It implements the
// environment.Environment interface.
type Env struct {
	Config

	initial   *circuit.Circuit
	placement *circuit.Circuit
	occupied  []bool
	next      int

	hpwl    float64
	overlap float64

	current ts.TimeStep
}

// New returns a new placement environment over a circuit. The circuit
// is copied; any positions it carries are discarded on Reset.
func New(c *circuit.Circuit, config Config) (*Env, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if n := len(c.Cells); n > ActionSize {
		return nil, fmt.Errorf("new: %w: %d cells do not fit in %d slots",
			circuit.ErrInvalidCircuit, n, ActionSize)
	}

	e := &Env{
		Config:  config,
		initial: c.Clone(),
	}
	e.Reset()
	return e, nil
}

// Reset implements the environment.Environment interface
func (e *Env) Reset() ts.TimeStep {
	e.placement = e.initial.Clone()
	e.placement.Unplace()
	e.occupied = make([]bool, ActionSize)
	e.next = 0
	e.hpwl = 0
	e.overlap = 0

	e.current = ts.New(ts.First, 0, e.state(), e.Available(), 0)
	return e.current
}

// Step implements the environment.Environment interface
func (e *Env) Step(action int) (ts.TimeStep, error) {
	if e.current.Last() {
		return ts.TimeStep{}, fmt.Errorf("step: episode has ended")
	}
	if action < 0 || action >= ActionSize || e.occupied[action] {
		return ts.TimeStep{}, fmt.Errorf("step: %w: %d", ErrIllegalAction,
			action)
	}

	cell := &e.placement.Cells[e.next]
	centre := e.SlotCenter(action)
	cell.Position = &circuit.Point{
		X: centre.X - cell.Width/2,
		Y: centre.Y - cell.Height/2,
	}
	e.occupied[action] = true
	e.next++

	hpwl := e.placement.HPWL()
	overlap := e.placement.OverlapArea()
	reward := -(hpwl-e.hpwl)/(e.ChipWidth+e.ChipHeight) -
		e.OverlapPenalty*(overlap-e.overlap)/(e.ChipWidth*e.ChipHeight)
	e.hpwl, e.overlap = hpwl, overlap

	stepType := ts.Mid
	var available []int
	if e.next == len(e.placement.Cells) {
		stepType = ts.Last
	} else {
		available = e.Available()
	}

	e.current = ts.New(stepType, reward, e.state(), available,
		e.current.Number+1)
	return e.current, nil
}

// Available implements the environment.Environment interface. It is
// empty once every cell has been placed.
func (e *Env) Available() []int {
	if e.next == len(e.placement.Cells) {
		return nil
	}
	available := make([]int, 0, ActionSize)
	for slot, occupied := range e.occupied {
		if !occupied {
			available = append(available, slot)
		}
	}
	return available
}

// StateSize implements the environment.Environment interface
func (e *Env) StateSize() int {
	return StateSize
}

// ActionSize implements the environment.Environment interface
func (e *Env) ActionSize() int {
	return ActionSize
}

// SlotCenter returns the centre of a slot on the chip. Slots are
// numbered row by row from the lower-left corner.
func (e *Env) SlotCenter(slot int) circuit.Point {
	row, col := slot/GridSize, slot%GridSize
	return circuit.Point{
		X: (float64(col) + 0.5) * e.ChipWidth / GridSize,
		Y: (float64(row) + 0.5) * e.ChipHeight / GridSize,
	}
}

// Placement returns a copy of the current placement
func (e *Env) Placement() *circuit.Circuit {
	return e.placement.Clone()
}

// Wirelength returns the half-perimeter wirelength of the current
// placement
func (e *Env) Wirelength() float64 {
	return e.hpwl
}

// Overlap returns the overlap area of the current placement
func (e *Env) Overlap() float64 {
	return e.overlap
}

// LastTimeStep returns the most recent TimeStep
func (e *Env) LastTimeStep() ts.TimeStep {
	return e.current
}

func (e *Env) state() []float64 {
	state := make([]float64, StateSize)
	for slot, occupied := range e.occupied {
		if occupied {
			state[slot] = 1
		}
	}
	state[ActionSize] = float64(e.next) / float64(len(e.placement.Cells))
	return state
}
