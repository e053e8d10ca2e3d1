// Package rollout implements the trajectory buffer of on-policy agents
package rollout

import (
	"errors"
	"fmt"
)

// Step is a single step of a trajectory. Value and LogProb are
// recorded under the policy that selected Action.
type Step struct {
	State     []float64
	Available []int
	Action    int
	Value     float64
	LogProb   float64
	Reward    float64
	Done      bool

	rewarded bool
}

// Buffer is an ordered trajectory. Steps are appended when an action
// is selected and completed when the reward for that action arrives.
type Buffer struct {
	steps []Step
}

var errNoPendingStep = errors.New("no action awaiting a reward")

// Append records a newly selected action. The state and available
// actions are copied.
func (b *Buffer) Append(state []float64, available []int, action int,
	value, logProb float64) {
	b.steps = append(b.steps, Step{
		State:     append([]float64(nil), state...),
		Available: append([]int(nil), available...),
		Action:    action,
		Value:     value,
		LogProb:   logProb,
	})
}

// Reward attaches a reward and episode termination flag to the most
// recently appended step.
func (b *Buffer) Reward(reward float64, done bool) error {
	n := len(b.steps)
	if n == 0 || b.steps[n-1].rewarded {
		return fmt.Errorf("reward: %w", errNoPendingStep)
	}
	b.steps[n-1].Reward = reward
	b.steps[n-1].Done = done
	b.steps[n-1].rewarded = true
	return nil
}

// Len returns the number of steps in the buffer
func (b *Buffer) Len() int {
	return len(b.steps)
}

// Complete returns the steps that have received their reward. A step
// still awaiting its reward can only be the last one.
func (b *Buffer) Complete() []Step {
	n := len(b.steps)
	if n > 0 && !b.steps[n-1].rewarded {
		return b.steps[:n-1]
	}
	return b.steps
}

// Pending reports whether the last step is still awaiting its reward
func (b *Buffer) Pending() bool {
	n := len(b.steps)
	return n > 0 && !b.steps[n-1].rewarded
}

// States, Available, and Actions return the per-step decisions of the
// completed steps.
func (b *Buffer) States() []float64 {
	var states []float64
	for _, s := range b.Complete() {
		states = append(states, s.State...)
	}
	return states
}

func (b *Buffer) Available() [][]int {
	steps := b.Complete()
	available := make([][]int, len(steps))
	for i, s := range steps {
		available[i] = s.Available
	}
	return available
}

func (b *Buffer) Actions() []int {
	steps := b.Complete()
	actions := make([]int, len(steps))
	for i, s := range steps {
		actions[i] = s.Action
	}
	return actions
}

// Episodes returns the number of completed episodes in the buffer
func (b *Buffer) Episodes() int {
	episodes := 0
	for _, s := range b.steps {
		if s.Done {
			episodes++
		}
	}
	return episodes
}

// Rewards, Values, LogProbs, and Dones return the per-step fields of
// the completed steps.
func (b *Buffer) Rewards() []float64 {
	return column(b.Complete(), func(s Step) float64 { return s.Reward })
}

func (b *Buffer) Values() []float64 {
	return column(b.Complete(), func(s Step) float64 { return s.Value })
}

func (b *Buffer) LogProbs() []float64 {
	return column(b.Complete(), func(s Step) float64 { return s.LogProb })
}

func (b *Buffer) Dones() []bool {
	steps := b.Complete()
	dones := make([]bool, len(steps))
	for i, s := range steps {
		dones[i] = s.Done
	}
	return dones
}

// Clear removes every step. Agents call Clear exactly once per
// completed update.
func (b *Buffer) Clear() {
	b.steps = b.steps[:0]
}

func column(steps []Step, f func(Step) float64) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = f(s)
	}
	return out
}
