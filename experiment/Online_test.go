package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/goplace/agent"
	"github.com/samuelfneumann/goplace/experiment/checkpointer"
	"github.com/samuelfneumann/goplace/experiment/tracker"
	"github.com/samuelfneumann/goplace/experiment/trackers"
	ts "github.com/samuelfneumann/goplace/timestep"
)

// line is an environment of length steps in which action i is legal
// only at step i and earns a reward of 1
type line struct {
	length int
	step   int
}

func (l *line) Reset() ts.TimeStep {
	l.step = 0
	return ts.New(ts.First, 0, []float64{0}, l.Available(), 0)
}

func (l *line) Step(action int) (ts.TimeStep, error) {
	if action != l.step {
		return ts.TimeStep{}, errors.New("illegal action")
	}
	l.step++
	if l.step == l.length {
		return ts.New(ts.Last, 1, []float64{float64(l.step)}, nil, l.step), nil
	}
	return ts.New(ts.Mid, 1, []float64{float64(l.step)}, l.Available(),
		l.step), nil
}

func (l *line) Available() []int { return []int{l.step} }
func (l *line) StateSize() int   { return 1 }
func (l *line) ActionSize() int  { return l.length }

// scripted takes the first available action and trains at the end of
// each episode
type scripted struct {
	rewards  []float64
	trained  int
	training []bool
}

func (s *scripted) SelectAction(_ []float64, available []int,
	training bool) (int, error) {
	s.training = append(s.training, training)
	return available[0], nil
}

func (s *scripted) StoreReward(r float64, _ bool) error {
	s.rewards = append(s.rewards, r)
	return nil
}

func (s *scripted) TrainStep() (agent.Losses, error) {
	s.trained++
	return agent.Losses{Loss: float64(s.trained)}, nil
}

func (s *scripted) ReadyToTrain(done bool) bool { return done }

func (s *scripted) StateDict() (*agent.StateDict, error) { return nil, nil }
func (s *scripted) LoadStateDict(*agent.StateDict) error { return nil }
func (s *scripted) Type() agent.Type                     { return "Scripted" }
func (s *scripted) Close() error                         { return nil }

func TestOnlineRun(t *testing.T) {
	a := &scripted{}
	ret := trackers.NewReturn()
	lengths := trackers.NewEpisodeLength()
	loss := trackers.NewLoss()

	var saved []string
	save := func(name string, episode int) error {
		saved = append(saved, name)
		return nil
	}
	nstep := checkpointer.NewNStep(2, save, checkpointer.EpisodeNamer("x"))

	o := NewOnline(&line{length: 3}, a, 5,
		[]tracker.Tracker{ret, lengths},
		[]checkpointer.Checkpointer{nstep})
	o.Register(loss)

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, 5, o.Episodes())
	assert.Equal(t, 15, o.Steps())

	assert.Equal(t, []float64{3, 3, 3, 3, 3}, ret.Data())
	assert.Equal(t, []float64{3, 3, 3, 3, 3}, lengths.Data())
	assert.Equal(t, 15, lengths.Total())
	assert.Equal(t, 5, a.trained)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, loss.Data())
	assert.Equal(t, []string{"x_ep2", "x_ep4"}, saved)
	assert.NotContains(t, a.training, false)
}

func TestOnlineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOnline(&line{length: 2}, &scripted{}, 3, nil, nil)
	assert.ErrorIs(t, o.Run(ctx), context.Canceled)
	assert.Zero(t, o.Episodes())
}

func TestOnlineCheckpointError(t *testing.T) {
	fail := errors.New("disk full")
	save := func(string, int) error { return fail }

	o := NewOnline(&line{length: 2}, &scripted{}, 3, nil,
		[]checkpointer.Checkpointer{checkpointer.NewNStep(1, save,
			checkpointer.FixedNamer("latest"))})
	assert.ErrorIs(t, o.Run(context.Background()), fail)
	assert.Equal(t, 1, o.Episodes())
}

func TestEvaluate(t *testing.T) {
	a := &scripted{}
	last, ret, err := Evaluate(&line{length: 4}, a)
	require.NoError(t, err)
	assert.True(t, last.Last())
	assert.Equal(t, 4.0, ret)
	assert.Empty(t, a.rewards)
	assert.NotContains(t, a.training, true)
}
