package vanillapg

import (
	"fmt"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/initwfn"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

func init() {
	agent.Register(agent.VanillaPG, Config{})
}

// Config implements a configuration of the VanillaPG agent with a
// masked categorical policy.
type Config struct {
	StateSize  int
	ActionSize int

	// Policy network, which outputs one logit per action
	PolicyLayers []int
	Biases       []bool
	Activations  []*network.Activation
	InitWFn      *initwfn.InitWFn
	Solver       *solver.Solver

	Gamma       float64
	MaxGradNorm float64 // <= 0 disables gradient clipping
}

// DefaultConfig returns the default REINFORCE configuration
func DefaultConfig(stateSize, actionSize int) Config {
	adam, err := solver.NewDefaultAdam(1e-3)
	if err != nil {
		panic(err)
	}
	return Config{
		StateSize:    stateSize,
		ActionSize:   actionSize,
		PolicyLayers: []int{128, 128},
		Biases:       []bool{true, true},
		Activations:  network.ReLUs(2),
		InitWFn:      initwfn.Default(),
		Solver:       adam,
		Gamma:        0.99,
		MaxGradNorm:  1.0,
	}
}

// CreateAgent creates a new VanillaPG agent from the Config
func (c Config) CreateAgent(seed uint64) (agent.Agent, error) {
	return New(c, seed)
}

// Type returns the type of agent the Config creates
func (c Config) Type() agent.Type {
	return agent.VanillaPG
}

// Validate checks a Config for errors
func (c Config) Validate() error {
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
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}
