package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/goplace/agent"
	env "github.com/samuelfneumann/goplace/environment"
	"github.com/samuelfneumann/goplace/experiment/checkpointer"
	"github.com/samuelfneumann/goplace/experiment/tracker"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// Online is an Experiment that trains an agent online. After every
// environment step, the agent is asked whether it is ready to train
// and is updated if so.
type Online struct {
	environment env.Environment
	agent       agent.Agent

	maxEpisodes int
	episodes    int
	steps       int

	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent, which runs for episodes episodes.
func NewOnline(e env.Environment, a agent.Agent, episodes int,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{
		environment:   e,
		agent:         a,
		maxEpisodes:   episodes,
		trackers:      t,
		checkpointers: c,
	}
}

// Register registers a tracker.Tracker with the experiment
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Episodes returns the number of episodes completed so far
func (o *Online) Episodes() int {
	return o.episodes
}

// Steps returns the number of environment steps taken so far
func (o *Online) Steps() int {
	return o.steps
}

// RunEpisode runs a single training episode
func (o *Online) RunEpisode() error {
	step := o.environment.Reset()
	o.track(step)

	for !step.Last() {
		action, err := o.agent.SelectAction(step.Observation, step.Available,
			true)
		if err != nil {
			return fmt.Errorf("runepisode: %w", err)
		}

		step, err = o.environment.Step(action)
		if err != nil {
			return fmt.Errorf("runepisode: %w", err)
		}
		o.steps++
		o.track(step)

		if err := o.agent.StoreReward(step.Reward, step.Last()); err != nil {
			return fmt.Errorf("runepisode: %w", err)
		}

		if o.agent.ReadyToTrain(step.Last()) {
			losses, err := o.agent.TrainStep()
			if err != nil {
				return fmt.Errorf("runepisode: %w", err)
			}
			if !losses.IsZero() {
				o.trackLosses(losses)
			}
		}
	}

	o.episodes++
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.episodes); err != nil {
			return fmt.Errorf("runepisode: %w", err)
		}
	}
	return nil
}

// Run runs the remaining episodes of the experiment. It stops early,
// between episodes, if ctx is cancelled.
func (o *Online) Run(ctx context.Context) error {
	for o.episodes < o.maxEpisodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.RunEpisode(); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs one episode in which the agent acts greedily and
// learns nothing, and returns its last TimeStep and its return
func Evaluate(e env.Environment, a agent.Agent) (ts.TimeStep, float64,
	error) {
	step := e.Reset()
	var ret float64
	for !step.Last() {
		action, err := a.SelectAction(step.Observation, step.Available, false)
		if err != nil {
			return step, ret, fmt.Errorf("evaluate: %w", err)
		}
		step, err = e.Step(action)
		if err != nil {
			return step, ret, fmt.Errorf("evaluate: %w", err)
		}
		ret += step.Reward
	}
	return step, ret, nil
}

// track sends the current timestep to each tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// trackLosses sends the metrics of an update to each tracker that
// records them
func (o *Online) trackLosses(l agent.Losses) {
	for _, tr := range o.trackers {
		if lt, ok := tr.(tracker.LossTracker); ok {
			lt.TrackLosses(l)
		}
	}
}
