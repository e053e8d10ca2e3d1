// Package trainer implements the placement service: training agents
// on a circuit, fitting the graph placement model, and placing
// circuits with saved models. Every trained model is saved through a
// checkpoint.Manager.
package trainer

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/checkpoint"
)

// ProgressFunc is called after every training episode
type ProgressFunc func(episode, episodes int, reward float64)

// Trainer runs training and inference sessions. Sessions may run
// concurrently; each owns its agent and environment.
type Trainer struct {
	manager *checkpoint.Manager
	logger  *slog.Logger

	// ConvergenceWindow is the window of the moving average of
	// episode rewards reported as convergence
	ConvergenceWindow int
}

// Option configures a Trainer
type Option func(*Trainer)

// WithLogger sets the logger of a Trainer
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithConvergenceWindow sets the window of the convergence trace
func WithConvergenceWindow(window int) Option {
	return func(t *Trainer) {
		t.ConvergenceWindow = window
	}
}

// New returns a Trainer that saves models with manager
func New(manager *checkpoint.Manager, opts ...Option) *Trainer {
	t := &Trainer{
		manager:           manager,
		logger:            slog.Default(),
		ConvergenceWindow: 10,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Manager returns the checkpoint manager of the Trainer
func (t *Trainer) Manager() *checkpoint.Manager {
	return t.manager
}

func newRunID() string {
	return uuid.NewString()
}

// snapshot bundles an agent with its configuration and progress
func snapshot(a agent.Agent, config agent.Config, episode int,
	reward, loss float64) (*checkpoint.Snapshot, error) {
	state, err := a.StateDict()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %v", err)
	}
	data, err := json.Marshal(agent.NewTypedConfig(config))
	if err != nil {
		return nil, fmt.Errorf("snapshot: could not encode config: %v", err)
	}
	return &checkpoint.Snapshot{
		Algorithm: string(a.Type()),
		Episode:   episode,
		Reward:    reward,
		Loss:      loss,
		Config:    data,
		State:     state,
	}, nil
}

// restore creates the agent stored in a snapshot
func restore(s *checkpoint.Snapshot, seed uint64) (agent.Agent,
	agent.Config, error) {
	if len(s.Config) == 0 {
		return nil, nil, fmt.Errorf("restore: snapshot has no agent " +
			"configuration")
	}
	var typed agent.TypedConfig
	if err := json.Unmarshal(s.Config, &typed); err != nil {
		return nil, nil, fmt.Errorf("restore: %w: %v", ErrUnknownAlgorithm,
			err)
	}
	a, err := typed.CreateAgent(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("restore: %v", err)
	}
	if err := a.LoadStateDict(s.State); err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("restore: %w", err)
	}
	return a, typed.Config, nil
}
