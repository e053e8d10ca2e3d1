package trackers

import (
	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/experiment/tracker"
	"github.com/samuelfneumann/goplace/timestep"
)

// Loss tracks the metrics of every agent update in an experiment
type Loss struct {
	losses []agent.Losses
}

// NewLoss returns a new Loss Tracker
func NewLoss() *Loss {
	return &Loss{}
}

// Track does nothing; losses are reported through TrackLosses
func (l *Loss) Track(timestep.TimeStep) {}

// TrackLosses records the metrics of an update
func (l *Loss) TrackLosses(losses agent.Losses) {
	l.losses = append(l.losses, losses)
}

// Data returns the total loss of each update
func (l *Loss) Data() []float64 {
	data := make([]float64, len(l.losses))
	for i, losses := range l.losses {
		data[i] = losses.Loss
	}
	return data
}

// Updates returns the number of updates tracked
func (l *Loss) Updates() int {
	return len(l.losses)
}

// Last returns the metrics of the most recent update, and false if no
// update has been tracked
func (l *Loss) Last() (agent.Losses, bool) {
	if len(l.losses) == 0 {
		return agent.Losses{}, false
	}
	return l.losses[len(l.losses)-1], true
}

var _ tracker.LossTracker = &Loss{}
