package trainer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samuelfneumann/goplace/agent"
	ts "github.com/samuelfneumann/goplace/timestep"
)

var (
	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goplace",
		Subsystem: "trainer",
		Name:      "sessions_total",
		Help:      "Training and inference sessions by kind, algorithm, and result",
	}, []string{"kind", "algorithm", "result"})

	episodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goplace",
		Subsystem: "trainer",
		Name:      "episodes_total",
		Help:      "Completed training episodes by algorithm",
	}, []string{"algorithm"})

	trainSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goplace",
		Subsystem: "trainer",
		Name:      "train_steps_total",
		Help:      "Agent updates that changed the agent, by algorithm",
	}, []string{"algorithm"})

	trainStepSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goplace",
		Subsystem: "trainer",
		Name:      "train_step_seconds",
		Help:      "Duration of agent updates by algorithm",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"algorithm"})
)

func observeSession(kind, algorithm string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sessions.WithLabelValues(kind, algorithm, result).Inc()
}

// instrumented wraps an Agent to time its updates
type instrumented struct {
	agent.Agent
	algorithm string
}

func (i instrumented) TrainStep() (agent.Losses, error) {
	start := time.Now()
	losses, err := i.Agent.TrainStep()
	trainStepSeconds.WithLabelValues(i.algorithm).Observe(
		time.Since(start).Seconds())
	if err == nil && !losses.IsZero() {
		trainSteps.WithLabelValues(i.algorithm).Inc()
	}
	return losses, err
}

// episodeCounter is a Tracker that counts completed episodes
type episodeCounter struct {
	algorithm string
	onEpisode func(episode int, ret float64)

	episode int
	ret     float64
}

func (e *episodeCounter) Track(step ts.TimeStep) {
	e.ret += step.Reward
	if !step.Last() {
		return
	}
	e.episode++
	episodes.WithLabelValues(e.algorithm).Inc()
	if e.onEpisode != nil {
		e.onEpisode(e.episode, e.ret)
	}
	e.ret = 0
}

func (e *episodeCounter) Data() []float64 {
	return []float64{float64(e.episode)}
}
