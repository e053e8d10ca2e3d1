// Package environment outlines the interface of environments that
// agents are trained in
package environment

import (
	"github.com/samuelfneumann/goplace/timestep"
)

// Environment implements a simulated environment with a discrete
// action space in which only some actions are legal at each step. The
// legal actions of a step are listed in its TimeStep.
type Environment interface {
	// Reset starts a new episode and returns its first TimeStep
	Reset() timestep.TimeStep

	// Step takes an action in the environment. Taking an action that
	// is not available is an error and leaves the environment
	// unchanged.
	Step(action int) (timestep.TimeStep, error)

	// Available returns the legal actions of the current step
	Available() []int

	StateSize() int
	ActionSize() int
}
