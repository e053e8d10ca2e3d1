package deepq

import (
	"fmt"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/initwfn"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

func init() {
	agent.Register(agent.DeepQ, Config{})
	agent.Register(agent.DoubleDeepQ, Config{})
	agent.Register(agent.DuelingDeepQ, Config{})
}

// Config implements a configuration of the DeepQ agent and its Double
// and Dueling variants.
type Config struct {
	// Variant is one of agent.DeepQ, agent.DoubleDeepQ, or
	// agent.DuelingDeepQ
	Variant agent.Type

	StateSize  int
	ActionSize int

	// Q network architecture. StreamLayers are the hidden layers of
	// each stream of the dueling architecture and are ignored by the
	// other variants.
	PolicyLayers []int
	Biases       []bool
	Activations  []*network.Activation
	StreamLayers []int
	InitWFn      *initwfn.InitWFn
	Solver       *solver.Solver

	Gamma        float64
	Epsilon      float64 // Initial exploration rate
	EpsilonMin   float64
	EpsilonDecay float64 // Multiplicative decay after each update

	// Experience replay parameters
	Capacity  int
	BatchSize int

	// Number of updates between hard copies of the online network into
	// the target network
	TargetUpdateInterval int

	MaxGradNorm float64 // <= 0 disables gradient clipping
}

// DefaultConfig returns the default configuration of a variant
func DefaultConfig(variant agent.Type, stateSize, actionSize int) Config {
	adam, err := solver.NewDefaultAdam(1e-3)
	if err != nil {
		panic(err)
	}

	c := Config{
		Variant:              variant,
		StateSize:            stateSize,
		ActionSize:           actionSize,
		PolicyLayers:         []int{128, 128},
		Biases:               []bool{true, true},
		Activations:          network.ReLUs(2),
		InitWFn:              initwfn.Default(),
		Solver:               adam,
		Gamma:                0.99,
		Epsilon:              1.0,
		EpsilonMin:           0.01,
		EpsilonDecay:         0.995,
		Capacity:             10000,
		BatchSize:            32,
		TargetUpdateInterval: 10,
		MaxGradNorm:          1.0,
	}
	if variant == agent.DuelingDeepQ {
		c.PolicyLayers = []int{128}
		c.Biases = []bool{true}
		c.Activations = network.ReLUs(1)
		c.StreamLayers = []int{128}
	}
	return c
}

// CreateAgent creates a new DeepQ agent from the Config
func (c Config) CreateAgent(seed uint64) (agent.Agent, error) {
	return New(c, seed)
}

// Type returns the variant of DeepQ described by the Config
func (c Config) Type() agent.Type {
	return c.Variant
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	switch c.Variant {
	case agent.DeepQ, agent.DoubleDeepQ, agent.DuelingDeepQ:
	default:
		return fmt.Errorf("validate: unknown deep Q variant %q", c.Variant)
	}
	if c.StateSize < 1 || c.ActionSize < 1 {
		return fmt.Errorf("validate: state size and action size must be " +
			"positive")
	}
	if len(c.PolicyLayers) != len(c.Biases) ||
		len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of biases (%d) or "+
			"activations (%d) for %d layers", len(c.Biases),
			len(c.Activations), len(c.PolicyLayers))
	}
	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount factor must be in [0, 1]")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 || c.EpsilonMin < 0 ||
		c.EpsilonMin > 1 {
		return fmt.Errorf("validate: exploration rates must be in [0, 1]")
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("validate: epsilon decay must be in (0, 1]")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive")
	}
	if c.Capacity < c.BatchSize {
		return fmt.Errorf("validate: replay capacity %d cannot be smaller "+
			"than batch size %d", c.Capacity, c.BatchSize)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("validate: target update interval must be " +
			"positive")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}
