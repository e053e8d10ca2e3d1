package vanillaac

import (
	"fmt"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/initwfn"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

func init() {
	agent.Register(agent.VanillaAC, Config{})
}

// Config implements a configuration of the VanillaAC agent
type Config struct {
	StateSize  int
	ActionSize int

	// Actor network, which outputs one logit per action
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation
	PolicySolver      *solver.Solver

	// Critic network, which outputs a single state value
	ValueFnLayers      []int
	ValueFnBiases      []bool
	ValueFnActivations []*network.Activation
	ValueFnSolver      *solver.Solver

	InitWFn *initwfn.InitWFn

	Gamma float64

	// EntropyCoef weighs the entropy bonus of the actor loss.
	// ValueCoef weighs the critic loss in the reported total loss only;
	// the critic has its own optimizer.
	EntropyCoef float64
	ValueCoef   float64

	MaxGradNorm float64 // <= 0 disables gradient clipping
}

// DefaultConfig returns the default Actor-Critic configuration
func DefaultConfig(stateSize, actionSize int) Config {
	policySolver, err := solver.NewDefaultAdam(1e-3)
	if err != nil {
		panic(err)
	}
	valueSolver, err := solver.NewDefaultAdam(1e-3)
	if err != nil {
		panic(err)
	}
	return Config{
		StateSize:          stateSize,
		ActionSize:         actionSize,
		PolicyLayers:       []int{128, 128},
		PolicyBiases:       []bool{true, true},
		PolicyActivations:  network.ReLUs(2),
		PolicySolver:       policySolver,
		ValueFnLayers:      []int{128, 128},
		ValueFnBiases:      []bool{true, true},
		ValueFnActivations: network.ReLUs(2),
		ValueFnSolver:      valueSolver,
		InitWFn:            initwfn.Default(),
		Gamma:              0.99,
		EntropyCoef:        0.01,
		ValueCoef:          0.5,
		MaxGradNorm:        1.0,
	}
}

// CreateAgent creates a new VanillaAC agent from the Config
func (c Config) CreateAgent(seed uint64) (agent.Agent, error) {
	return New(c, seed)
}

// Type returns the type of agent the Config creates
func (c Config) Type() agent.Type {
	return agent.VanillaAC
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.StateSize < 1 || c.ActionSize < 1 {
		return fmt.Errorf("validate: state size and action size must be " +
			"positive")
	}
	if len(c.PolicyLayers) != len(c.PolicyBiases) ||
		len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("validate: invalid number of policy biases or " +
			"activations")
	}
	if len(c.ValueFnLayers) != len(c.ValueFnBiases) ||
		len(c.ValueFnLayers) != len(c.ValueFnActivations) {
		return fmt.Errorf("validate: invalid number of value function " +
			"biases or activations")
	}
	if c.PolicySolver == nil || c.PolicySolver.Config == nil ||
		c.ValueFnSolver == nil || c.ValueFnSolver.Config == nil {
		return fmt.Errorf("validate: actor and critic each need a solver")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount factor must be in [0, 1]")
	}
	if c.EntropyCoef < 0 || c.ValueCoef < 0 {
		return fmt.Errorf("validate: loss coefficients cannot be negative")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}
