package ppo

import (
	"fmt"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/initwfn"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

func init() {
	agent.Register(agent.PPO, Config{})
}

// Config implements a configuration of the PPO agent
type Config struct {
	StateSize  int
	ActionSize int

	// Shared trunk of the policy-value network
	Layers      []int
	Biases      []bool
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver

	Gamma  float64
	Lambda float64 // GAE(λ)

	ClipEpsilon float64
	ValueCoef   float64
	EntropyCoef float64

	// Epochs is the number of passes over each rollout
	Epochs int

	// RolloutEpisodes is the number of episodes collected before each
	// update
	RolloutEpisodes int

	MaxGradNorm float64 // <= 0 disables gradient clipping
}

// DefaultConfig returns the default PPO configuration
func DefaultConfig(stateSize, actionSize int) Config {
	adam, err := solver.NewDefaultAdam(3e-4)
	if err != nil {
		panic(err)
	}
	return Config{
		StateSize:       stateSize,
		ActionSize:      actionSize,
		Layers:          []int{128, 128},
		Biases:          []bool{true, true},
		Activations:     network.ReLUs(2),
		InitWFn:         initwfn.Default(),
		Solver:          adam,
		Gamma:           0.99,
		Lambda:          0.95,
		ClipEpsilon:     0.2,
		ValueCoef:       0.5,
		EntropyCoef:     0.01,
		Epochs:          4,
		RolloutEpisodes: 1,
		MaxGradNorm:     0.5,
	}
}

// CreateAgent creates a new PPO agent from the Config
func (c Config) CreateAgent(seed uint64) (agent.Agent, error) {
	return New(c, seed)
}

// Type returns the type of agent the Config creates
func (c Config) Type() agent.Type {
	return agent.PPO
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.StateSize < 1 || c.ActionSize < 1 {
		return fmt.Errorf("validate: state size and action size must be " +
			"positive")
	}
	if len(c.Layers) != len(c.Biases) || len(c.Layers) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of biases (%d) or "+
			"activations (%d) for %d layers", len(c.Biases),
			len(c.Activations), len(c.Layers))
	}
	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount factor must be in [0, 1]")
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: λ must be in [0, 1]")
	}
	if c.ClipEpsilon <= 0 || c.ClipEpsilon >= 1 {
		return fmt.Errorf("validate: clip epsilon must be in (0, 1)")
	}
	if c.ValueCoef < 0 || c.EntropyCoef < 0 {
		return fmt.Errorf("validate: loss coefficients cannot be negative")
	}
	if c.Epochs < 1 {
		return fmt.Errorf("validate: epochs must be positive")
	}
	if c.RolloutEpisodes < 1 {
		return fmt.Errorf("validate: rollout episodes must be positive")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	return nil
}
