// Package tracker defines the interfaces of Trackers, which record
// data generated during an experiment
package tracker

import (
	"github.com/samuelfneumann/goplace/agent"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// Tracker keeps track of experiment data. Track is called with every
// TimeStep of the experiment, in order.
type Tracker interface {
	Track(t ts.TimeStep)

	// Data returns a copy of the data tracked so far
	Data() []float64
}

// LossTracker is a Tracker that also records the metrics of agent
// updates
type LossTracker interface {
	Tracker
	TrackLosses(l agent.Losses)
}
