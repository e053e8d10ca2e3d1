package trackers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samuelfneumann/goplace/agent"
	ts "github.com/samuelfneumann/goplace/timestep"
)

func TestReturn(t *testing.T) {
	r := NewReturn()
	r.Track(ts.New(ts.First, 0, nil, nil, 0))
	r.Track(ts.New(ts.Mid, -1, nil, nil, 1))
	r.Track(ts.New(ts.Last, -2, nil, nil, 2))
	r.Track(ts.New(ts.First, 0, nil, nil, 0))
	r.Track(ts.New(ts.Last, 4, nil, nil, 1))

	assert.Equal(t, []float64{-3, 4}, r.Data())
	assert.Equal(t, []float64{-3, 0.5}, r.Convergence(10))
	assert.Equal(t, []float64{-3, 4}, r.Convergence(1))

	assert.Panics(t, func() { r.Track(ts.New(ts.Mid, 0, nil, nil, 3)) })
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, []float64{1, 1.5, 2.5, 3.5, 4.5}, got)
	assert.Empty(t, MovingAverage(nil, 10))
}

func TestLoss(t *testing.T) {
	l := NewLoss()
	_, ok := l.Last()
	assert.False(t, ok)

	l.TrackLosses(agent.Losses{Loss: 1, PolicyLoss: 2})
	l.TrackLosses(agent.Losses{Loss: 3})
	assert.Equal(t, []float64{1, 3}, l.Data())
	assert.Equal(t, 2, l.Updates())

	last, ok := l.Last()
	assert.True(t, ok)
	assert.Equal(t, 3.0, last.Loss)
}
