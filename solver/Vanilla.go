package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newvanilla: step size must be positive")
	}
	return newSolver(Vanilla, VanillaConfig{StepSize: stepSize})
}

// Create returns a vanilla gradient descent optimizer
func (v VanillaConfig) Create() Optimizer {
	return &vanilla{config: v}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// vanilla implements θ <- θ - α ∇θ
type vanilla struct {
	config VanillaConfig
	steps  int
}

func (v *vanilla) Step(model []G.ValueGrad) error {
	for i, vg := range model {
		weights, grad, err := weightsAndGrad(vg)
		if err != nil {
			return fmt.Errorf("step: learnable %d: %v", i, err)
		}
		for j, g := range grad {
			weights[j] -= v.config.StepSize * g
		}
	}
	v.steps++
	return nil
}

func (v *vanilla) State() State {
	return State{Type: Vanilla, Steps: v.steps}
}

func (v *vanilla) SetState(s State) error {
	if s.Type != Vanilla {
		return fmt.Errorf("setstate: cannot restore %v state into Vanilla",
			s.Type)
	}
	v.steps = s.Steps
	return nil
}
