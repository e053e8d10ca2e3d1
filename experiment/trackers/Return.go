// Package trackers implements Trackers, which record data of an
// experiment
package trackers

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/goplace/experiment/tracker"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// Return tracks the episodic return in an experiment. When an
// environment returns a TimeStep, this Tracker will extract the reward
// and accumulate the return for each episode in the experiment.
//
// Note: An episode must finish for its return to be tracked.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{lastTimeStep: -1}
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker accumulates the rewards of the episode
// and stores the cumulative reward as the episodic return when the
// episode ends.
//
// Track panics if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	if r.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number)
		panic(msg)
	}

	r.currentReturn += step.Reward
	if !step.Last() {
		r.lastTimeStep = step.Number
		return
	}

	// Episode has ended, save the return and begin tracking the
	// return for a new episode
	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.currentReturn = 0.0
	r.lastTimeStep = -1
}

// Data returns the returns of all completed episodes
func (r *Return) Data() []float64 {
	return append([]float64(nil), r.episodeReturns...)
}

// Convergence returns the moving average of the episodic returns over
// a trailing window. Entry i averages the returns of episodes
// max(0, i-window+1) through i.
func (r *Return) Convergence(window int) []float64 {
	return MovingAverage(r.episodeReturns, window)
}

// MovingAverage returns the trailing moving average of data. Windows
// that start before the first element average the elements available.
func MovingAverage(data []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	avg := make([]float64, len(data))
	for i := range data {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		avg[i] = stat.Mean(data[start:i+1], nil)
	}
	return avg
}

var _ tracker.Tracker = &Return{}
