// Package agent defines the contract shared by every placement agent,
// the snapshot format of their trainable state, and the registry that
// lets agent configurations be serialized with their concrete type.
package agent

import (
	"errors"
	"fmt"
)

// Agent is a trainable decision maker over a discrete action space in
// which only a subset of actions is legal at each decision.
//
// An Agent is owned by a single goroutine for the duration of a
// training session and is not safe for concurrent use.
type Agent interface {
	// SelectAction returns an action from available. In training mode
	// the agent explores and records whatever it needs for its next
	// update; otherwise it acts greedily and records nothing.
	SelectAction(state []float64, available []int, training bool) (int,
		error)

	// StoreReward records the reward for the most recent action
	// selected in training mode and whether it ended the episode.
	StoreReward(reward float64, done bool) error

	// TrainStep performs one update cycle on the buffered experience.
	// If there is not enough experience, it returns zero Losses and
	// leaves the agent unchanged.
	TrainStep() (Losses, error)

	// ReadyToTrain reports whether the training loop should call
	// TrainStep now. It is called after every environment step.
	ReadyToTrain(episodeDone bool) bool

	StateDict() (*StateDict, error)
	LoadStateDict(*StateDict) error

	Type() Type

	// Close releases the resources held by the agent's computational
	// graphs.
	Close() error
}

// Losses reports the metrics of one TrainStep. Fields that an
// algorithm does not compute are zero.
type Losses struct {
	Loss         float64 `json:"loss"`
	PolicyLoss   float64 `json:"policyLoss,omitempty"`
	ValueLoss    float64 `json:"valueLoss,omitempty"`
	Entropy      float64 `json:"entropy,omitempty"`
	ClipFraction float64 `json:"clipFraction,omitempty"`
	GradNorm     float64 `json:"gradNorm,omitempty"`
}

// IsZero reports whether no update took place
func (l Losses) IsZero() bool {
	return l == Losses{}
}

var (
	// ErrNoAvailableActions is returned when an action is requested
	// with an empty set of legal actions.
	ErrNoAvailableActions = errors.New("no available actions")

	// ErrDimensionMismatch is returned when states, actions, or loaded
	// snapshots do not match the dimensions of an agent.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// CheckDecision validates the arguments of SelectAction
func CheckDecision(state []float64, available []int, stateSize,
	actionSize int) error {
	if len(state) != stateSize {
		return fmt.Errorf("state has %d features, want %d: %w", len(state),
			stateSize, ErrDimensionMismatch)
	}
	if len(available) == 0 {
		return ErrNoAvailableActions
	}
	for _, a := range available {
		if a < 0 || a >= actionSize {
			return fmt.Errorf("available action %d outside [0, %d): %w", a,
				actionSize, ErrDimensionMismatch)
		}
	}
	return nil
}

// MustBeAvailable panics if action is not in available. Returning an
// illegal action is a programming error.
func MustBeAvailable(action int, available []int) int {
	for _, a := range available {
		if a == action {
			return action
		}
	}
	panic(fmt.Sprintf("selected action %d is not available: %v", action,
		available))
}
