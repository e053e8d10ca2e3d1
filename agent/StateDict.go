package agent

import (
	"fmt"

	"github.com/samuelfneumann/goplace/solver"
)

// StateDict is a complete snapshot of an agent's trainable state:
// the parameters of every network, the state of every optimizer, and
// algorithm scalars such as the exploration rate. Loading a StateDict
// into a freshly constructed agent of the same Type and dimensions
// reproduces the agent that produced it.
type StateDict struct {
	Type       Type
	StateSize  int
	ActionSize int

	Params     map[string][][]float64
	Optimizers map[string]solver.State
	Scalars    map[string]float64
}

// NewStateDict returns an empty StateDict for an agent
func NewStateDict(t Type, stateSize, actionSize int) *StateDict {
	return &StateDict{
		Type:       t,
		StateSize:  stateSize,
		ActionSize: actionSize,
		Params:     make(map[string][][]float64),
		Optimizers: make(map[string]solver.State),
		Scalars:    make(map[string]float64),
	}
}

// Check returns an error wrapping ErrDimensionMismatch if the
// StateDict was not produced by an agent of type t with the given
// dimensions.
func (s *StateDict) Check(t Type, stateSize, actionSize int) error {
	if s == nil {
		return fmt.Errorf("check: nil state dict")
	}
	if s.Type != t {
		return fmt.Errorf("check: state dict of type %v cannot be loaded "+
			"into %v: %w", s.Type, t, ErrDimensionMismatch)
	}
	if s.StateSize != stateSize || s.ActionSize != actionSize {
		return fmt.Errorf("check: state dict has state size %d and action "+
			"size %d, want %d and %d: %w", s.StateSize, s.ActionSize,
			stateSize, actionSize, ErrDimensionMismatch)
	}
	return nil
}

// Param returns the parameters stored under name
func (s *StateDict) Param(name string) ([][]float64, error) {
	p, ok := s.Params[name]
	if !ok {
		return nil, fmt.Errorf("param: state dict has no parameters %q", name)
	}
	return p, nil
}

// Optimizer returns the optimizer state stored under name
func (s *StateDict) Optimizer(name string) (solver.State, error) {
	o, ok := s.Optimizers[name]
	if !ok {
		return solver.State{}, fmt.Errorf("optimizer: state dict has no "+
			"optimizer %q", name)
	}
	return o, nil
}
