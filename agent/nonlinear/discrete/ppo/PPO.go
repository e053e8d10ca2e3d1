// Package ppo implements Proximal Policy Optimization with the clipped
// surrogate objective and generalized advantage estimation. A single
// network with a shared trunk outputs both the masked categorical
// policy logits and the state value.
//
// This implementation is adapted from:
//
// https://spinningup.openai.com/en/latest/algorithms/ppo.html
package ppo

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goplace/buffer/gae"
	"github.com/samuelfneumann/goplace/buffer/rollout"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

// PPO implements the PPO agent
type PPO struct {
	config Config

	behaviour   network.NeuralNet
	behaviourVM G.VM

	train  *trainNet
	solver solver.Optimizer

	buffer rollout.Buffer
	source rand.Source
}

// New creates and returns a new PPO agent
func New(c Config, seed uint64) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	g := G.NewGraph()
	behaviour, err := network.NewPolicyValueMLP(c.StateSize, 1, c.ActionSize,
		g, c.Layers, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy-value "+
			"network: %v", err)
	}

	return &PPO{
		config:      c,
		behaviour:   behaviour,
		behaviourVM: G.NewTapeMachine(g),
		solver:      c.Solver.Create(),
		source:      rand.NewSource(seed),
	}, nil
}

func (p *PPO) trainNetFor(batch int) *trainNet {
	if p.train != nil && p.train.net.BatchSize() == batch {
		return p.train
	}
	t, err := newTrainNet(p.behaviour, batch, p.config)
	if err != nil {
		panic(fmt.Sprintf("trainnetfor: %v", err))
	}
	p.closeTrain()
	p.train = t
	return t
}

func (p *PPO) closeTrain() {
	if p.train != nil {
		p.train.vm.Close()
		p.train = nil
	}
}

// SelectAction samples an action from the masked policy in training
// mode, recording the state value and the log probability of the
// action, and returns the most probable available action otherwise.
func (p *PPO) SelectAction(state []float64, available []int,
	training bool) (int, error) {
	err := agent.CheckDecision(state, available, p.config.StateSize,
		p.config.ActionSize)
	if err != nil {
		return 0, fmt.Errorf("selectaction: %w", err)
	}
	if training && p.buffer.Pending() {
		return 0, fmt.Errorf("selectaction: previous action has not been " +
			"rewarded")
	}

	out := policy.Forward(p.behaviour, p.behaviourVM, state)
	logits, value := out[0], out[1][0]
	probs := policy.Probabilities(logits, available)

	if !training {
		return agent.MustBeAvailable(policy.Greedy(probs, available),
			available), nil
	}

	action := agent.MustBeAvailable(policy.Sample(probs, p.source),
		available)
	p.buffer.Append(state, available, action, value,
		policy.LogProb(logits, available, action))
	return action, nil
}

// StoreReward records the reward of the last action
func (p *PPO) StoreReward(reward float64, done bool) error {
	if err := p.buffer.Reward(reward, done); err != nil {
		return fmt.Errorf("storereward: %v", err)
	}
	return nil
}

// ReadyToTrain returns true once the configured number of episodes has
// been collected
func (p *PPO) ReadyToTrain(episodeDone bool) bool {
	return episodeDone && p.buffer.Episodes() >= p.config.RolloutEpisodes
}

// TrainStep performs Epochs passes of the clipped surrogate update over
// the collected rollout and clears it. The returned losses are
// averaged over the epochs. With no collected steps, zero Losses are
// returned.
func (p *PPO) TrainStep() (agent.Losses, error) {
	n := len(p.buffer.Complete())
	if n == 0 {
		return agent.Losses{}, nil
	}
	defer p.buffer.Clear()

	values := p.buffer.Values()
	advantages, returns, err := gae.Advantages(p.buffer.Rewards(), values,
		p.buffer.Dones(), p.config.Gamma, p.config.Lambda)
	if err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: %v", err)
	}
	advantages = gae.Standardize(advantages)

	t := p.trainNetFor(n)
	states, available := p.buffer.States(), p.buffer.Available()
	actions, oldLogProbs := p.buffer.Actions(), p.buffer.LogProbs()

	var losses agent.Losses
	for epoch := 0; epoch < p.config.Epochs; epoch++ {
		err := t.setBatch(states, available, actions, oldLogProbs, advantages,
			returns)
		if err != nil {
			panic(fmt.Sprintf("trainstep: %v", err))
		}
		if err := t.vm.RunAll(); err != nil {
			panic(fmt.Sprintf("trainstep: could not run training graph: %v",
				err))
		}
		norm, err := network.ClipGradNorm(t.net.Model(), p.config.MaxGradNorm)
		if err != nil {
			panic(fmt.Sprintf("trainstep: %v", err))
		}
		if err := p.solver.Step(t.net.Model()); err != nil {
			panic(fmt.Sprintf("trainstep: could not step solver: %v", err))
		}

		losses.Loss += t.loss.Data().(float64)
		losses.PolicyLoss += t.policyLoss.Data().(float64)
		losses.ValueLoss += t.valueLoss.Data().(float64)
		losses.Entropy += t.entropy.Data().(float64)
		losses.ClipFraction += t.clipFraction(p.config.ClipEpsilon)
		losses.GradNorm += norm
		t.vm.Reset()
	}

	epochs := float64(p.config.Epochs)
	losses.Loss /= epochs
	losses.PolicyLoss /= epochs
	losses.ValueLoss /= epochs
	losses.Entropy /= epochs
	losses.ClipFraction /= epochs
	losses.GradNorm /= epochs

	if err := p.behaviour.Set(t.net); err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: could not set "+
			"behaviour network: %v", err)
	}
	return losses, nil
}

// StateDict returns the network weights and the optimizer state
func (p *PPO) StateDict() (*agent.StateDict, error) {
	s := agent.NewStateDict(p.Type(), p.config.StateSize,
		p.config.ActionSize)
	s.Params["policy"] = p.behaviour.Params()
	s.Optimizers["policy"] = p.solver.State()
	return s, nil
}

// LoadStateDict restores a snapshot returned by StateDict. Any
// collected steps are discarded.
func (p *PPO) LoadStateDict(s *agent.StateDict) error {
	err := s.Check(p.Type(), p.config.StateSize, p.config.ActionSize)
	if err != nil {
		return fmt.Errorf("loadstatedict: %w", err)
	}
	params, err := s.Param("policy")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	optimizer, err := s.Optimizer("policy")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}

	if err := p.behaviour.SetParams(params); err != nil {
		return fmt.Errorf("loadstatedict: %w: %v", agent.ErrDimensionMismatch,
			err)
	}
	if err := p.solver.SetState(optimizer); err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	p.closeTrain()
	p.buffer.Clear()
	return nil
}

// Type returns the type of the agent
func (p *PPO) Type() agent.Type {
	return agent.PPO
}

// Close releases the agent's virtual machines
func (p *PPO) Close() error {
	p.closeTrain()
	return p.behaviourVM.Close()
}
