package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newadam: step size must be positive")
	}
	if beta1 < 0 || beta1 >= 1 || beta2 < 0 || beta2 >= 1 {
		return nil, fmt.Errorf("newadam: betas must be in [0, 1)")
	}
	return newSolver(Adam, AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
	})
}

// Create returns a new Adam optimizer with zeroed moments
func (a AdamConfig) Create() Optimizer {
	return &adam{config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// adam implements the Adam optimizer with bias-corrected moment
// estimates. Moments are allocated on the first Step and are indexed
// by the position of each learnable in the model.
type adam struct {
	config AdamConfig
	steps  int
	m, v   [][]float64
}

// Step updates the weights of model in place
func (a *adam) Step(model []G.ValueGrad) error {
	if a.m == nil {
		a.m = make([][]float64, len(model))
		a.v = make([][]float64, len(model))
	}
	if len(model) != len(a.m) {
		return fmt.Errorf("step: optimizer tracks %d learnables but model "+
			"has %d", len(a.m), len(model))
	}

	a.steps++
	b1, b2 := a.config.Beta1, a.config.Beta2
	correction1 := 1 - math.Pow(b1, float64(a.steps))
	correction2 := math.Sqrt(1 - math.Pow(b2, float64(a.steps)))
	stepSize := a.config.StepSize / correction1

	for i, vg := range model {
		weights, grad, err := weightsAndGrad(vg)
		if err != nil {
			return fmt.Errorf("step: learnable %d: %v", i, err)
		}
		if a.m[i] == nil {
			a.m[i] = make([]float64, len(weights))
			a.v[i] = make([]float64, len(weights))
		}
		if len(a.m[i]) != len(weights) {
			return fmt.Errorf("step: learnable %d changed size", i)
		}

		m, v := a.m[i], a.v[i]
		for j, g := range grad {
			m[j] = b1*m[j] + (1-b1)*g
			v[j] = b2*v[j] + (1-b2)*g*g
			denom := math.Sqrt(v[j])/correction2 + a.config.Epsilon
			weights[j] -= stepSize * m[j] / denom
		}
	}
	return nil
}

// State returns a copy of the optimizer's moments and step count
func (a *adam) State() State {
	return State{
		Type:  Adam,
		Steps: a.steps,
		M:     cloneMoments(a.m),
		V:     cloneMoments(a.v),
	}
}

// SetState restores a state returned by State
func (a *adam) SetState(s State) error {
	if s.Type != Adam {
		return fmt.Errorf("setstate: cannot restore %v state into Adam",
			s.Type)
	}
	if len(s.M) != len(s.V) {
		return fmt.Errorf("setstate: first and second moments differ in " +
			"length")
	}
	a.steps = s.Steps
	a.m = cloneMoments(s.M)
	a.v = cloneMoments(s.V)
	return nil
}
