// Package vanillapg implements the REINFORCE policy gradient algorithm
// with a masked categorical policy. The policy is updated at the end
// of each episode using standardized Monte-Carlo returns.
package vanillapg

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goplace/buffer/gae"
	"github.com/samuelfneumann/goplace/buffer/rollout"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
)

// VPG implements REINFORCE. The behaviour policy acts one state at a
// time; a training policy with one row per recorded step is built
// when an update is performed.
type VPG struct {
	config Config

	behaviour   network.NeuralNet
	behaviourVM G.VM

	train  *trainPolicy
	solver solver.Optimizer

	buffer rollout.Buffer
	source rand.Source
}

// trainPolicy is a policy network over a whole trajectory together
// with its REINFORCE loss and gradient.
type trainPolicy struct {
	net     network.NeuralNet
	vm      G.VM
	scorer  *policy.Scorer
	returns *G.Node
	loss    G.Value
}

// New creates and returns a new VanillaPG agent
func New(c Config, seed uint64) (*VPG, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	g := G.NewGraph()
	behaviour, err := network.NewMultiHeadMLP(c.StateSize, 1, c.ActionSize,
		g, c.PolicyLayers, c.Biases, c.InitWFn.InitWFn(), c.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy: %v", err)
	}

	return &VPG{
		config:      c,
		behaviour:   behaviour,
		behaviourVM: G.NewTapeMachine(g),
		solver:      c.Solver.Create(),
		source:      rand.NewSource(seed),
	}, nil
}

// trainPolicyFor returns a training policy over batch steps. The last
// training policy is reused when the batch size does not change.
func (v *VPG) trainPolicyFor(batch int) *trainPolicy {
	if v.train != nil && v.train.net.BatchSize() == batch {
		return v.train
	}

	net, err := v.behaviour.CloneWithBatch(batch)
	if err != nil {
		panic(fmt.Sprintf("trainpolicyfor: could not create training "+
			"policy: %v", err))
	}
	scorer, err := policy.NewScorer(net.Prediction()[0])
	if err != nil {
		panic(fmt.Sprintf("trainpolicyfor: %v", err))
	}
	returns := G.NewVector(net.Graph(), tensor.Float64, G.WithShape(batch),
		G.WithName("returns"), G.WithInit(G.Zeroes()))

	// -Σ log π(a|s) G
	policyLoss := G.Must(G.HadamardProd(scorer.LogProb, returns))
	policyLoss = G.Must(G.Neg(G.Must(G.Sum(policyLoss))))

	tp := &trainPolicy{net: net, scorer: scorer, returns: returns}
	G.Read(policyLoss, &tp.loss)

	if _, err := G.Grad(policyLoss, net.Learnables()...); err != nil {
		panic(fmt.Sprintf("trainpolicyfor: could not compute gradient: %v",
			err))
	}
	tp.vm = G.NewTapeMachine(net.Graph(),
		G.BindDualValues(net.Learnables()...))

	v.closeTrain()
	v.train = tp
	return tp
}

func (v *VPG) closeTrain() {
	if v.train != nil {
		v.train.vm.Close()
		v.train = nil
	}
}

// SelectAction samples an action from the masked policy in training
// mode and returns the most probable available action otherwise.
func (v *VPG) SelectAction(state []float64, available []int,
	training bool) (int, error) {
	err := agent.CheckDecision(state, available, v.config.StateSize,
		v.config.ActionSize)
	if err != nil {
		return 0, fmt.Errorf("selectaction: %w", err)
	}
	if training && v.buffer.Pending() {
		return 0, fmt.Errorf("selectaction: previous action has not been " +
			"rewarded")
	}

	logits := policy.Forward(v.behaviour, v.behaviourVM, state)[0]
	probs := policy.Probabilities(logits, available)

	var action int
	if training {
		action = policy.Sample(probs, v.source)
	} else {
		action = policy.Greedy(probs, available)
	}
	agent.MustBeAvailable(action, available)

	if training {
		logProb := policy.LogProb(logits, available, action)
		v.buffer.Append(state, available, action, 0, logProb)
	}
	return action, nil
}

// StoreReward records the reward of the last action
func (v *VPG) StoreReward(reward float64, done bool) error {
	if err := v.buffer.Reward(reward, done); err != nil {
		return fmt.Errorf("storereward: %v", err)
	}
	return nil
}

// ReadyToTrain returns true at the end of each episode
func (v *VPG) ReadyToTrain(episodeDone bool) bool {
	return episodeDone
}

// TrainStep performs one REINFORCE update over the recorded steps and
// clears them. Fewer than two recorded steps carry no signal once
// their returns are standardized, so they are discarded without an
// update and zero Losses are returned.
func (v *VPG) TrainStep() (agent.Losses, error) {
	n := len(v.buffer.Complete())
	if n == 0 {
		return agent.Losses{}, nil
	}
	defer v.buffer.Clear()
	if n < 2 {
		return agent.Losses{}, nil
	}

	returns, err := gae.EpisodicReturns(v.buffer.Rewards(), v.buffer.Dones(),
		v.config.Gamma)
	if err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: %v", err)
	}
	returns = gae.Standardize(returns)

	tp := v.trainPolicyFor(n)
	if err := tp.net.SetInput(v.buffer.States()); err != nil {
		panic(fmt.Sprintf("trainstep: could not set input: %v", err))
	}
	err = tp.scorer.SetBatch(v.buffer.Available(), v.buffer.Actions())
	if err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	err = G.Let(tp.returns, tensor.New(tensor.WithShape(n),
		tensor.WithBacking(returns)))
	if err != nil {
		panic(fmt.Sprintf("trainstep: could not set returns: %v", err))
	}

	if err := tp.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("trainstep: could not run training graph: %v", err))
	}
	norm, err := network.ClipGradNorm(tp.net.Model(), v.config.MaxGradNorm)
	if err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	if err := v.solver.Step(tp.net.Model()); err != nil {
		panic(fmt.Sprintf("trainstep: could not step solver: %v", err))
	}
	loss := tp.loss.Data().(float64)
	tp.vm.Reset()

	if err := v.behaviour.Set(tp.net); err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: could not set "+
			"behaviour policy: %v", err)
	}
	return agent.Losses{Loss: loss, PolicyLoss: loss, GradNorm: norm}, nil
}

// StateDict returns the policy weights and the optimizer state
func (v *VPG) StateDict() (*agent.StateDict, error) {
	s := agent.NewStateDict(v.Type(), v.config.StateSize,
		v.config.ActionSize)
	s.Params["policy"] = v.behaviour.Params()
	s.Optimizers["policy"] = v.solver.State()
	return s, nil
}

// LoadStateDict restores a snapshot returned by StateDict. Any
// recorded steps are discarded.
func (v *VPG) LoadStateDict(s *agent.StateDict) error {
	err := s.Check(v.Type(), v.config.StateSize, v.config.ActionSize)
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

	if err := v.behaviour.SetParams(params); err != nil {
		return fmt.Errorf("loadstatedict: %w: %v", agent.ErrDimensionMismatch,
			err)
	}
	if err := v.solver.SetState(optimizer); err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	v.closeTrain()
	v.buffer.Clear()
	return nil
}

// Type returns the type of the agent
func (v *VPG) Type() agent.Type {
	return agent.VanillaPG
}

// Close releases the agent's virtual machines
func (v *VPG) Close() error {
	v.closeTrain()
	return v.behaviourVM.Close()
}
