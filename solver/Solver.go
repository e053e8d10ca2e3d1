// Package solver implements the gradient-based optimizers that adapt
// network weights. Solvers are described by JSON serializable
// configurations, and the Optimizers they create expose their internal
// state so that training can be checkpointed and resumed.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

var registered = map[string]reflect.Type{
	string(Vanilla): reflect.TypeOf(VanillaConfig{}),
	string(Adam):    reflect.TypeOf(AdamConfig{}),
}

// Solver describes an optimizer so that it can be JSON marshalled and
// unmarshalled. Each call to Create returns a new Optimizer with fresh
// state.
type Solver struct {
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	return &Solver{Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName string
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return fmt.Errorf("unmarshaljson: could not decode solver type: %v",
			err)
	}
	ty, ok := registered[typeName]
	if !ok {
		return fmt.Errorf("unmarshaljson: unknown solver type %q", typeName)
	}

	value := reflect.New(ty)
	if err := json.Unmarshal(m["Config"], value.Interface()); err != nil {
		return fmt.Errorf("unmarshaljson: could not decode %v config: %v",
			typeName, err)
	}

	s.Type = Type(typeName)
	s.Config = value.Elem().Interface().(Config)
	return nil
}

// Config describes an optimizer and creates it
type Config interface {
	Create() Optimizer

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// Optimizer is a Gorgonia Solver whose internal state can be saved
// and restored.
type Optimizer interface {
	G.Solver
	State() State
	SetState(State) error
}

// State is a snapshot of an Optimizer. M and V hold per-learnable
// moment estimates for optimizers that track them.
type State struct {
	Type  Type
	Steps int
	M     [][]float64
	V     [][]float64
}

func cloneMoments(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

// weightsAndGrad returns the backing data of a learnable and of its
// gradient.
func weightsAndGrad(vg G.ValueGrad) ([]float64, []float64, error) {
	weights, ok := vg.Value().Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("learnable is not a float64 tensor")
	}
	grad, err := vg.Grad()
	if err != nil {
		return nil, nil, fmt.Errorf("could not get gradient: %v", err)
	}
	gradData, ok := grad.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("gradient is not a float64 tensor")
	}
	if len(weights) != len(gradData) {
		return nil, nil, fmt.Errorf("gradient has %d values but learnable "+
			"has %d", len(gradData), len(weights))
	}
	return weights, gradData, nil
}
