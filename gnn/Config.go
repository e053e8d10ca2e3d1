package gnn

import (
	"fmt"

	"github.com/samuelfneumann/goplace/initwfn"
	"github.com/samuelfneumann/goplace/solver"
)

// Config configures a graph placement Model
type Config struct {
	HiddenDim int
	NumLayers int

	InitWFn *initwfn.InitWFn
	Solver  *solver.Solver

	// SmoothCoef weighs the wirelength term of the loss against the
	// anchor term
	SmoothCoef float64

	MaxGradNorm float64 // <= 0 disables gradient clipping
}

// DefaultConfig returns the default Config with the given learning
// rate, hidden dimension, and number of graph convolution layers
func DefaultConfig(learningRate float64, hiddenDim, numLayers int) Config {
	adam, err := solver.NewDefaultAdam(learningRate)
	if err != nil {
		panic(err)
	}
	return Config{
		HiddenDim:   hiddenDim,
		NumLayers:   numLayers,
		InitWFn:     initwfn.Default(),
		Solver:      adam,
		SmoothCoef:  0.1,
		MaxGradNorm: 1.0,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.HiddenDim < 1 {
		return fmt.Errorf("validate: hidden dimension must be positive")
	}
	if c.NumLayers < 0 {
		return fmt.Errorf("validate: number of layers must be non-negative")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver")
	}
	if c.SmoothCoef < 0 {
		return fmt.Errorf("validate: smoothing coefficient must be " +
			"non-negative")
	}
	return nil
}
