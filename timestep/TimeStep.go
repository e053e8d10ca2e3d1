// Package timestep implements timesteps of the agent-environment
// interaction
package timestep

import (
	"fmt"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment.
// Available lists the actions that are legal in Observation; it is
// empty only on the last step of an episode.
type TimeStep struct {
	StepType
	Reward      float64
	Observation []float64
	Available   []int
	Number      int
}

// New returns a new TimeStep
func New(t StepType, r float64, o []float64, available []int,
	n int) TimeStep {
	return TimeStep{t, r, o, available, n}
}

// First returns whether a TimeStep is the first in an episode
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an episode
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an episode
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Available: %d  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, len(t.Available), t.Number)
}
