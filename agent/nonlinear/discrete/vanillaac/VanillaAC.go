// Package vanillaac implements an episodic Actor-Critic algorithm with
// a masked categorical actor and a state-value critic. The advantage
// of each step is its standardized Monte-Carlo return minus the value
// the critic predicted when the action was selected.
package vanillaac

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

// VAC implements the Actor-Critic agent
type VAC struct {
	config Config

	// Actor
	behaviour    network.NeuralNet
	behaviourVM  G.VM
	policySolver solver.Optimizer

	// Critic
	vValueFn      network.NeuralNet
	vVM           G.VM
	vSolver       solver.Optimizer
	trainPolicy   *actorGraph
	vTrainValueFn *criticGraph

	buffer rollout.Buffer
	source rand.Source
}

// actorGraph holds the actor loss over a whole trajectory:
//
//	mean(-log π(a|s) A) - β mean(H[π(·|s)])
type actorGraph struct {
	net        network.NeuralNet
	vm         G.VM
	scorer     *policy.Scorer
	advantages *G.Node
	loss       G.Value
	entropy    G.Value
}

// criticGraph holds the mean squared error between state values and
// returns over a whole trajectory
type criticGraph struct {
	net     network.NeuralNet
	vm      G.VM
	targets *G.Node
	loss    G.Value
}

// New creates and returns a new VanillaAC agent
func New(c Config, seed uint64) (*VAC, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	pg := G.NewGraph()
	behaviour, err := network.NewMultiHeadMLP(c.StateSize, 1, c.ActionSize,
		pg, c.PolicyLayers, c.PolicyBiases, c.InitWFn.InitWFn(),
		c.PolicyActivations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create actor: %v", err)
	}

	vg := G.NewGraph()
	valueFn, err := network.NewMultiHeadMLP(c.StateSize, 1, 1, vg,
		c.ValueFnLayers, c.ValueFnBiases, c.InitWFn.InitWFn(),
		c.ValueFnActivations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}

	return &VAC{
		config:       c,
		behaviour:    behaviour,
		behaviourVM:  G.NewTapeMachine(pg),
		policySolver: c.PolicySolver.Create(),
		vValueFn:     valueFn,
		vVM:          G.NewTapeMachine(vg),
		vSolver:      c.ValueFnSolver.Create(),
		source:       rand.NewSource(seed),
	}, nil
}

func (v *VAC) actorFor(batch int) *actorGraph {
	if v.trainPolicy != nil && v.trainPolicy.net.BatchSize() == batch {
		return v.trainPolicy
	}

	net, err := v.behaviour.CloneWithBatch(batch)
	if err != nil {
		panic(fmt.Sprintf("actorfor: could not create training actor: %v",
			err))
	}
	scorer, err := policy.NewScorer(net.Prediction()[0])
	if err != nil {
		panic(fmt.Sprintf("actorfor: %v", err))
	}
	advantages := G.NewVector(net.Graph(), tensor.Float64,
		G.WithShape(batch), G.WithName("advantages"),
		G.WithInit(G.Zeroes()))
	entropyCoef := G.NewScalar(net.Graph(), tensor.Float64,
		G.WithName("entropyCoef"), G.WithValue(v.config.EntropyCoef))

	policyLoss := G.Must(G.HadamardProd(scorer.LogProb, advantages))
	policyLoss = G.Must(G.Neg(G.Must(G.Mean(policyLoss))))
	entropy := G.Must(G.Mean(scorer.Entropy))
	loss := G.Must(G.Sub(policyLoss, G.Must(G.Mul(entropyCoef, entropy))))

	a := &actorGraph{net: net, scorer: scorer, advantages: advantages}
	G.Read(loss, &a.loss)
	G.Read(entropy, &a.entropy)

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		panic(fmt.Sprintf("actorfor: could not compute gradient: %v", err))
	}
	a.vm = G.NewTapeMachine(net.Graph(),
		G.BindDualValues(net.Learnables()...))

	if v.trainPolicy != nil {
		v.trainPolicy.vm.Close()
	}
	v.trainPolicy = a
	return a
}

func (v *VAC) criticFor(batch int) *criticGraph {
	if v.vTrainValueFn != nil && v.vTrainValueFn.net.BatchSize() == batch {
		return v.vTrainValueFn
	}

	net, err := v.vValueFn.CloneWithBatch(batch)
	if err != nil {
		panic(fmt.Sprintf("criticfor: could not create training critic: %v",
			err))
	}
	targets := G.NewMatrix(net.Graph(), tensor.Float64,
		G.WithShape(net.Prediction()[0].Shape()...),
		G.WithName("valueFnTargets"), G.WithInit(G.Zeroes()))

	loss := G.Must(G.Sub(net.Prediction()[0], targets))
	loss = G.Must(G.Mean(G.Must(G.Square(loss))))

	c := &criticGraph{net: net, targets: targets}
	G.Read(loss, &c.loss)

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		panic(fmt.Sprintf("criticfor: could not compute gradient: %v", err))
	}
	c.vm = G.NewTapeMachine(net.Graph(),
		G.BindDualValues(net.Learnables()...))

	if v.vTrainValueFn != nil {
		v.vTrainValueFn.vm.Close()
	}
	v.vTrainValueFn = c
	return c
}

func (v *VAC) closeTrain() {
	if v.trainPolicy != nil {
		v.trainPolicy.vm.Close()
		v.trainPolicy = nil
	}
	if v.vTrainValueFn != nil {
		v.vTrainValueFn.vm.Close()
		v.vTrainValueFn = nil
	}
}

// SelectAction samples an action from the masked actor in training
// mode, recording the critic's value of the state, and returns the
// most probable available action otherwise.
func (v *VAC) SelectAction(state []float64, available []int,
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

	if !training {
		return agent.MustBeAvailable(policy.Greedy(probs, available),
			available), nil
	}

	action := agent.MustBeAvailable(policy.Sample(probs, v.source),
		available)
	value := policy.Forward(v.vValueFn, v.vVM, state)[0][0]
	v.buffer.Append(state, available, action, value,
		policy.LogProb(logits, available, action))
	return action, nil
}

// StoreReward records the reward of the last action
func (v *VAC) StoreReward(reward float64, done bool) error {
	if err := v.buffer.Reward(reward, done); err != nil {
		return fmt.Errorf("storereward: %v", err)
	}
	return nil
}

// ReadyToTrain returns true at the end of each episode
func (v *VAC) ReadyToTrain(episodeDone bool) bool {
	return episodeDone
}

// TrainStep updates the actor and then the critic on the recorded
// steps and clears them. With no recorded steps, zero Losses are
// returned.
func (v *VAC) TrainStep() (agent.Losses, error) {
	n := len(v.buffer.Complete())
	if n == 0 {
		return agent.Losses{}, nil
	}
	defer v.buffer.Clear()

	returns, err := gae.EpisodicReturns(v.buffer.Rewards(), v.buffer.Dones(),
		v.config.Gamma)
	if err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: %v", err)
	}
	returns = gae.Standardize(returns)
	advantages := make([]float64, n)
	for i, value := range v.buffer.Values() {
		advantages[i] = returns[i] - value
	}
	states := v.buffer.States()

	// Actor update
	actor := v.actorFor(n)
	if err := actor.net.SetInput(states); err != nil {
		panic(fmt.Sprintf("trainstep: could not set actor input: %v", err))
	}
	err = actor.scorer.SetBatch(v.buffer.Available(), v.buffer.Actions())
	if err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	err = G.Let(actor.advantages, tensor.New(tensor.WithShape(n),
		tensor.WithBacking(advantages)))
	if err != nil {
		panic(fmt.Sprintf("trainstep: could not set advantages: %v", err))
	}
	if err := actor.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("trainstep: could not run actor graph: %v", err))
	}
	policyNorm, err := network.ClipGradNorm(actor.net.Model(),
		v.config.MaxGradNorm)
	if err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	if err := v.policySolver.Step(actor.net.Model()); err != nil {
		panic(fmt.Sprintf("trainstep: could not step actor solver: %v", err))
	}
	policyLoss := actor.loss.Data().(float64)
	entropy := actor.entropy.Data().(float64)
	actor.vm.Reset()

	// Critic update
	critic := v.criticFor(n)
	if err := critic.net.SetInput(states); err != nil {
		panic(fmt.Sprintf("trainstep: could not set critic input: %v", err))
	}
	err = G.Let(critic.targets, tensor.New(tensor.WithShape(n, 1),
		tensor.WithBacking(returns)))
	if err != nil {
		panic(fmt.Sprintf("trainstep: could not set critic targets: %v", err))
	}
	if err := critic.vm.RunAll(); err != nil {
		panic(fmt.Sprintf("trainstep: could not run critic graph: %v", err))
	}
	if _, err := network.ClipGradNorm(critic.net.Model(),
		v.config.MaxGradNorm); err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	if err := v.vSolver.Step(critic.net.Model()); err != nil {
		panic(fmt.Sprintf("trainstep: could not step critic solver: %v", err))
	}
	valueLoss := critic.loss.Data().(float64)
	critic.vm.Reset()

	if err := v.behaviour.Set(actor.net); err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: could not set "+
			"behaviour policy: %v", err)
	}
	if err := v.vValueFn.Set(critic.net); err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: could not set "+
			"value function: %v", err)
	}

	return agent.Losses{
		Loss:       policyLoss + v.config.ValueCoef*valueLoss,
		PolicyLoss: policyLoss,
		ValueLoss:  valueLoss,
		Entropy:    entropy,
		GradNorm:   policyNorm,
	}, nil
}

// StateDict returns the weights and optimizer states of the actor and
// the critic
func (v *VAC) StateDict() (*agent.StateDict, error) {
	s := agent.NewStateDict(v.Type(), v.config.StateSize,
		v.config.ActionSize)
	s.Params["actor"] = v.behaviour.Params()
	s.Params["critic"] = v.vValueFn.Params()
	s.Optimizers["actor"] = v.policySolver.State()
	s.Optimizers["critic"] = v.vSolver.State()
	return s, nil
}

// LoadStateDict restores a snapshot returned by StateDict. Any
// recorded steps are discarded.
func (v *VAC) LoadStateDict(s *agent.StateDict) error {
	err := s.Check(v.Type(), v.config.StateSize, v.config.ActionSize)
	if err != nil {
		return fmt.Errorf("loadstatedict: %w", err)
	}

	restore := []struct {
		name   string
		net    network.NeuralNet
		solver solver.Optimizer
	}{
		{"actor", v.behaviour, v.policySolver},
		{"critic", v.vValueFn, v.vSolver},
	}
	for _, r := range restore {
		params, err := s.Param(r.name)
		if err != nil {
			return fmt.Errorf("loadstatedict: %v", err)
		}
		optimizer, err := s.Optimizer(r.name)
		if err != nil {
			return fmt.Errorf("loadstatedict: %v", err)
		}
		if err := r.net.SetParams(params); err != nil {
			return fmt.Errorf("loadstatedict: %w: %s: %v",
				agent.ErrDimensionMismatch, r.name, err)
		}
		if err := r.solver.SetState(optimizer); err != nil {
			return fmt.Errorf("loadstatedict: %s: %v", r.name, err)
		}
	}

	v.closeTrain()
	v.buffer.Clear()
	return nil
}

// Type returns the type of the agent
func (v *VAC) Type() agent.Type {
	return agent.VanillaAC
}

// Close releases the agent's virtual machines
func (v *VAC) Close() error {
	v.closeTrain()
	if err := v.behaviourVM.Close(); err != nil {
		return fmt.Errorf("close: %v", err)
	}
	return v.vVM.Close()
}
