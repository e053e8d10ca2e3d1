// Package experiment implements functionality for running an experiment:
// an agent interacting with an environment for a number of episodes,
// with trackers recording data and checkpointers saving the agent as
// the experiment progresses.
package experiment

import (
	"context"

	"github.com/samuelfneumann/goplace/experiment/tracker"
)

// Experiment outlines structs that can run experiments. Run runs
// episodes until the episode limit is reached or the context is
// cancelled. RunEpisode runs a single episode.
//
// Experiments send each TimeStep and the metrics of each agent update
// to their Trackers. New Trackers can be registered with an Experiment
// through its constructor or through its Register method.
type Experiment interface {
	Run(ctx context.Context) error
	RunEpisode() error

	// Register adds a new Tracker to the (possibly already running)
	// experiment. Useful if data should only be tracked after some
	// event.
	Register(t tracker.Tracker)

	// Episodes returns the number of episodes completed so far
	Episodes() int
}
