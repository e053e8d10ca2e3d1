package trackers

import (
	"github.com/samuelfneumann/goplace/experiment/tracker"
	"github.com/samuelfneumann/goplace/timestep"
)

// EpisodeLength tracks the lengths of episodes in an experiment.
// Note that an episode must finish for its length to be tracked.
type EpisodeLength struct {
	episodeLengths []float64
}

// NewEpisodeLength returns a new EpisodeLength Tracker
func NewEpisodeLength() *EpisodeLength {
	return &EpisodeLength{}
}

// Track caches the episode length when it receives the last timestep
// of an episode
func (e *EpisodeLength) Track(t timestep.TimeStep) {
	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(t.Number))
	}
}

// Data returns the lengths of all completed episodes
func (e *EpisodeLength) Data() []float64 {
	return append([]float64(nil), e.episodeLengths...)
}

// Total returns the total number of steps of all completed episodes
func (e *EpisodeLength) Total() int {
	var total int
	for _, l := range e.episodeLengths {
		total += int(l)
	}
	return total
}

var _ tracker.Tracker = &EpisodeLength{}
