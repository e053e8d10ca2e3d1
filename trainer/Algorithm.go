package trainer

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/ppo"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/vanillaac"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/vanillapg"
	"github.com/samuelfneumann/goplace/environment/placement"
	"github.com/samuelfneumann/goplace/solver"
)

// Algorithm names a placement training algorithm
type Algorithm string

// Available algorithms
const (
	DQN            Algorithm = "dqn"
	DoubleDQN      Algorithm = "double-dqn"
	DuelingDQN     Algorithm = "dueling-dqn"
	PolicyGradient Algorithm = "policy-gradient"
	ActorCritic    Algorithm = "actor-critic"
	PPO            Algorithm = "ppo"
)

// Algorithms lists the available algorithms
var Algorithms = []Algorithm{DQN, DoubleDQN, DuelingDQN, PolicyGradient,
	ActorCritic, PPO}

var agentTypes = map[Algorithm]agent.Type{
	DQN:            agent.DeepQ,
	DoubleDQN:      agent.DoubleDeepQ,
	DuelingDQN:     agent.DuelingDeepQ,
	PolicyGradient: agent.VanillaPG,
	ActorCritic:    agent.VanillaAC,
	PPO:            agent.PPO,
}

// checkpointPrefixes name the checkpoints of each algorithm
var checkpointPrefixes = map[Algorithm]string{
	DQN:            "dqn",
	DoubleDQN:      "double_dqn",
	DuelingDQN:     "dueling_dqn",
	PolicyGradient: "pg",
	ActorCritic:    "ac",
	PPO:            "ppo",
}

// ParseAlgorithm returns the Algorithm named by name. Names are case
// insensitive and underscores may be used in place of dashes.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(
		name)), "_", "-"))
	if _, ok := agentTypes[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return a, nil
}

// Type returns the agent type trained by the algorithm
func (a Algorithm) Type() agent.Type {
	return agentTypes[a]
}

// Checkpoint returns the name of the latest checkpoint of the algorithm
func (a Algorithm) Checkpoint() string {
	return checkpointPrefixes[a] + "_latest"
}

// Prefix returns the prefix of the checkpoint names of the algorithm
func (a Algorithm) Prefix() string {
	return checkpointPrefixes[a]
}

// AgentConfig returns the configuration of the agent trained by the
// algorithm with the hyperparameters of a request
func (a Algorithm) AgentConfig(req Request) (agent.Config, error) {
	adam, err := solver.NewDefaultAdam(req.LearningRate)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: %v", err)
	}
	states, actions := placement.StateSize, placement.ActionSize

	var c agent.Config
	switch a {
	case DQN, DoubleDQN, DuelingDQN:
		dq := deepq.DefaultConfig(a.Type(), states, actions)
		dq.Solver = adam
		dq.Gamma = req.DiscountFactor
		dq.Epsilon = req.Epsilon
		dq.EpsilonMin = min(dq.EpsilonMin, req.Epsilon)
		dq.BatchSize = req.BatchSize
		dq.Capacity = max(dq.Capacity, req.BatchSize)
		c = dq

	case PolicyGradient:
		pg := vanillapg.DefaultConfig(states, actions)
		pg.Solver = adam
		pg.Gamma = req.DiscountFactor
		c = pg

	case ActorCritic:
		ac := vanillaac.DefaultConfig(states, actions)
		valueSolver, err := solver.NewDefaultAdam(req.LearningRate)
		if err != nil {
			return nil, fmt.Errorf("agentconfig: %v", err)
		}
		ac.PolicySolver = adam
		ac.ValueFnSolver = valueSolver
		ac.Gamma = req.DiscountFactor
		c = ac

	case PPO:
		p := ppo.DefaultConfig(states, actions)
		p.Solver = adam
		p.Gamma = req.DiscountFactor
		c = p

	default:
		return nil, fmt.Errorf("agentconfig: %w: %q", ErrUnknownAlgorithm, a)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("agentconfig: %w: %v", ErrInvalidRequest, err)
	}
	return c, nil
}
