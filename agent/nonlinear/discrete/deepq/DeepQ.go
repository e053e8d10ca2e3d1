// Package deepq implements deep Q-learning (DQN) and its Double and
// Dueling refinements. The three variants share one update rule and
// differ only in how next states are evaluated (Double) or in the
// structure of the Q network (Dueling).
package deepq

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/agent/nonlinear/discrete/policy"
	"github.com/samuelfneumann/goplace/expreplay"
	"github.com/samuelfneumann/goplace/network"
	"github.com/samuelfneumann/goplace/solver"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// DeepQ implements the deep Q-learning algorithm with an experience
// replay buffer, a hard-synced target network, and the MSE loss.
type DeepQ struct {
	config Config

	// Online network for selecting actions, one state at a time
	behaviour   network.NeuralNet
	behaviourVM G.VM

	// Network whose weights are adapted on batches of transitions. Its
	// weights are copied to the behaviour network after each update.
	trainNet        network.NeuralNet
	trainNetVM      G.VM
	selectedActions *G.Node // One-hot actions taken in each state
	targets         *G.Node // Bootstrapped update targets
	loss            G.Value
	solver          solver.Optimizer

	// Target network which provides the update target
	targetNet   network.NeuralNet
	targetNetVM G.VM

	// Batched online network used by Double DQN to select next actions
	onlineNet   network.NeuralNet
	onlineNetVM G.VM

	rule          targetRule
	selector      *policy.EGreedy
	gradientSteps int

	replay *expreplay.Buffer

	// The transition of the previous action, waiting for its reward or
	// its next state
	pending  *ts.Transition
	rewarded bool
}

// New creates and returns a new DeepQ agent
func New(config Config, seed uint64) (*DeepQ, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	g := G.NewGraph()
	var behaviour network.NeuralNet
	var err error
	if config.Variant == agent.DuelingDeepQ {
		behaviour, err = network.NewDuelingMLP(config.StateSize, 1,
			config.ActionSize, g, config.PolicyLayers, config.Biases,
			config.InitWFn.InitWFn(), config.Activations, config.StreamLayers)
	} else {
		behaviour, err = network.NewMultiHeadMLP(config.StateSize, 1,
			config.ActionSize, g, config.PolicyLayers, config.Biases,
			config.InitWFn.InitWFn(), config.Activations)
	}
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour network: %v",
			err)
	}

	targetNet, err := behaviour.CloneWithBatch(config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}

	var onlineNet network.NeuralNet
	var onlineNetVM G.VM
	if config.Variant == agent.DoubleDeepQ {
		onlineNet, err = behaviour.CloneWithBatch(config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("new: could not create online "+
				"evaluation network: %v", err)
		}
		onlineNetVM = G.NewTapeMachine(onlineNet.Graph())
	}

	replay, err := expreplay.New(config.Capacity, config.StateSize, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	d := &DeepQ{
		config:      config,
		behaviour:   behaviour,
		behaviourVM: G.NewTapeMachine(g),
		solver:      config.Solver.Create(),
		targetNet:   targetNet,
		targetNetVM: G.NewTapeMachine(targetNet.Graph()),
		onlineNet:   onlineNet,
		onlineNetVM: onlineNetVM,
		rule:        ruleFor(config.Variant),
		selector:    policy.NewEGreedy(config.Epsilon, seed),
		replay:      replay,
	}
	if err := d.buildTrainNet(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return d, nil
}

// buildTrainNet creates the training network from the current
// behaviour network weights and compiles its loss and gradient.
func (d *DeepQ) buildTrainNet() error {
	batch, actions := d.config.BatchSize, d.config.ActionSize

	trainNet, err := d.behaviour.CloneWithBatch(batch)
	if err != nil {
		return fmt.Errorf("could not create learning network: %v", err)
	}
	g := trainNet.Graph()

	// Action selected in each state. This is needed to compute the loss
	// using the correct action value since the network outputs one
	// value per action
	selectedActions := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, actions), G.WithName("actionSelected"),
		G.WithInit(G.Zeroes()))
	targets := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))

	selectedValues := G.Must(G.HadamardProd(trainNet.Prediction()[0],
		selectedActions))
	selectedValues = G.Must(G.Sum(selectedValues, 1))

	// Mean squared TD error. The targets are inputs, so no gradient
	// flows through them.
	losses := G.Must(G.Sub(targets, selectedValues))
	losses = G.Must(G.Square(losses))
	cost := G.Must(G.Mean(losses))
	G.Read(cost, &d.loss)

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		panic(fmt.Sprintf("buildtrainnet: could not compute gradient: %v",
			err))
	}

	if d.trainNetVM != nil {
		d.trainNetVM.Close()
	}
	d.trainNet = trainNet
	d.trainNetVM = G.NewTapeMachine(g,
		G.BindDualValues(trainNet.Learnables()...))
	d.selectedActions = selectedActions
	d.targets = targets
	return nil
}

// SelectAction returns an ε-greedy action in training mode and the
// greedy action otherwise. In training mode the state also completes
// the transition of the previous action.
func (d *DeepQ) SelectAction(state []float64, available []int,
	training bool) (int, error) {
	err := agent.CheckDecision(state, available, d.config.StateSize,
		d.config.ActionSize)
	if err != nil {
		return 0, fmt.Errorf("selectaction: %w", err)
	}

	if training && d.pending != nil {
		if !d.rewarded {
			return 0, fmt.Errorf("selectaction: previous action has not " +
				"been rewarded")
		}
		d.pending.NextState = state
		if err := d.replay.Add(*d.pending); err != nil {
			return 0, fmt.Errorf("selectaction: %v", err)
		}
		d.pending = nil
	}

	var action int
	if d.selector.Explore(training) {
		action = d.selector.Random(available)
	} else {
		values := d.evaluate(d.behaviour, d.behaviourVM, state)
		action = policy.Greedy(values, available)
	}
	agent.MustBeAvailable(action, available)

	if training {
		d.pending = &ts.Transition{
			State:  append([]float64(nil), state...),
			Action: action,
		}
		d.rewarded = false
	}
	return action, nil
}

// StoreReward records the reward of the previous action. A terminal
// transition is added to the replay buffer immediately since its next
// state is never bootstrapped.
func (d *DeepQ) StoreReward(reward float64, done bool) error {
	if d.pending == nil || d.rewarded {
		return fmt.Errorf("storereward: no action awaiting a reward")
	}
	d.pending.Reward = reward
	d.pending.Done = done
	d.rewarded = true

	if done {
		d.pending.NextState = make([]float64, d.config.StateSize)
		if err := d.replay.Add(*d.pending); err != nil {
			return fmt.Errorf("storereward: %v", err)
		}
		d.pending = nil
	}
	return nil
}

// ReadyToTrain returns true; DeepQ updates after every environment
// step once the replay buffer holds a full batch.
func (d *DeepQ) ReadyToTrain(bool) bool {
	return true
}

// TrainStep performs one update on a minibatch sampled from the replay
// buffer. If the buffer holds fewer transitions than the batch size,
// no update is performed and zero Losses are returned.
func (d *DeepQ) TrainStep() (agent.Losses, error) {
	batch, err := d.replay.Sample(d.config.BatchSize)
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return agent.Losses{}, nil
	} else if err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: %v", err)
	}

	// Bootstrapped update target: r + γ (1 - done) next
	targetValues := d.evaluate(d.targetNet, d.targetNetVM, batch.NextStates)
	var onlineValues []float64
	if d.onlineNet != nil {
		onlineValues = d.evaluate(d.onlineNet, d.onlineNetVM,
			batch.NextStates)
	}
	next := d.rule(targetValues, onlineValues, d.config.ActionSize)
	targets := make([]float64, batch.Len())
	for i := range targets {
		targets[i] = batch.Rewards[i] +
			(1-batch.Dones[i])*d.config.Gamma*next[i]
	}

	selected := make([]float64, 0, batch.Len()*d.config.ActionSize)
	for _, a := range batch.Actions {
		selected = append(selected, policy.OneHot(a, d.config.ActionSize)...)
	}

	if err := d.trainNet.SetInput(batch.States); err != nil {
		panic(fmt.Sprintf("trainstep: could not set trainNet input: %v", err))
	}
	err = G.Let(d.selectedActions, tensor.New(
		tensor.WithShape(batch.Len(), d.config.ActionSize),
		tensor.WithBacking(selected)))
	if err != nil {
		panic(fmt.Sprintf("trainstep: could not set selected actions: %v",
			err))
	}
	err = G.Let(d.targets, tensor.New(tensor.WithShape(batch.Len()),
		tensor.WithBacking(targets)))
	if err != nil {
		panic(fmt.Sprintf("trainstep: could not set targets: %v", err))
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		panic(fmt.Sprintf("trainstep: could not run training graph: %v",
			err))
	}
	norm, err := network.ClipGradNorm(d.trainNet.Model(),
		d.config.MaxGradNorm)
	if err != nil {
		panic(fmt.Sprintf("trainstep: %v", err))
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		panic(fmt.Sprintf("trainstep: could not step solver: %v", err))
	}
	loss := d.loss.Data().(float64)
	d.trainNetVM.Reset()
	d.gradientSteps++

	// Hard sync of the target network
	if d.gradientSteps%d.config.TargetUpdateInterval == 0 {
		if err := d.targetNet.Set(d.trainNet); err != nil {
			return agent.Losses{}, fmt.Errorf("trainstep: could not sync "+
				"target network: %v", err)
		}
	}
	if err := d.syncOnline(); err != nil {
		return agent.Losses{}, fmt.Errorf("trainstep: %v", err)
	}

	d.selector.Epsilon = math.Max(d.config.EpsilonMin,
		d.selector.Epsilon*d.config.EpsilonDecay)

	return agent.Losses{Loss: loss, GradNorm: norm}, nil
}

// syncOnline copies the trained weights to the networks that are not
// trained directly
func (d *DeepQ) syncOnline() error {
	if err := d.behaviour.Set(d.trainNet); err != nil {
		return fmt.Errorf("could not set behaviour network: %v", err)
	}
	if d.onlineNet != nil {
		if err := d.onlineNet.Set(d.trainNet); err != nil {
			return fmt.Errorf("could not set online network: %v", err)
		}
	}
	return nil
}

// evaluate runs a forward-only network on input and returns a copy of
// its first output
func (d *DeepQ) evaluate(net network.NeuralNet, vm G.VM,
	input []float64) []float64 {
	if err := net.SetInput(append([]float64(nil), input...)); err != nil {
		panic(fmt.Sprintf("evaluate: could not set input: %v", err))
	}
	if err := vm.RunAll(); err != nil {
		panic(fmt.Sprintf("evaluate: could not run network: %v", err))
	}
	out := append([]float64(nil), net.Output()[0].Data().([]float64)...)
	vm.Reset()
	return out
}

// Epsilon returns the current exploration rate
func (d *DeepQ) Epsilon() float64 {
	return d.selector.Epsilon
}

// StateDict returns a snapshot of the online and target networks, the
// optimizer, the exploration rate, and the number of updates.
func (d *DeepQ) StateDict() (*agent.StateDict, error) {
	s := agent.NewStateDict(d.Type(), d.config.StateSize,
		d.config.ActionSize)
	s.Params["q"] = d.behaviour.Params()
	s.Params["target"] = d.targetNet.Params()
	s.Optimizers["q"] = d.solver.State()
	s.Scalars["epsilon"] = d.selector.Epsilon
	s.Scalars["gradient_steps"] = float64(d.gradientSteps)
	return s, nil
}

// LoadStateDict restores a snapshot returned by StateDict
func (d *DeepQ) LoadStateDict(s *agent.StateDict) error {
	err := s.Check(d.Type(), d.config.StateSize, d.config.ActionSize)
	if err != nil {
		return fmt.Errorf("loadstatedict: %w", err)
	}
	q, err := s.Param("q")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	target, err := s.Param("target")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	optimizer, err := s.Optimizer("q")
	if err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}

	if err := d.behaviour.SetParams(q); err != nil {
		return fmt.Errorf("loadstatedict: %w: %v", agent.ErrDimensionMismatch,
			err)
	}
	if err := d.targetNet.SetParams(target); err != nil {
		return fmt.Errorf("loadstatedict: %w: %v", agent.ErrDimensionMismatch,
			err)
	}
	if err := d.solver.SetState(optimizer); err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	if err := d.buildTrainNet(); err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}
	if err := d.syncOnline(); err != nil {
		return fmt.Errorf("loadstatedict: %v", err)
	}

	d.selector.Epsilon = s.Scalars["epsilon"]
	d.gradientSteps = int(s.Scalars["gradient_steps"])
	d.pending = nil
	return nil
}

// Type returns the variant of the agent
func (d *DeepQ) Type() agent.Type {
	return d.config.Variant
}

// Close releases the agent's virtual machines
func (d *DeepQ) Close() error {
	vms := []G.VM{d.behaviourVM, d.trainNetVM, d.targetNetVM, d.onlineNetVM}
	for _, vm := range vms {
		if vm != nil {
			if err := vm.Close(); err != nil {
				return fmt.Errorf("close: %v", err)
			}
		}
	}
	return nil
}
