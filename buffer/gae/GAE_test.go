package gae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestDiscountedReturns(t *testing.T) {
	got := DiscountedReturns([]float64{1, 1, 1}, 0.5)
	assert.InDeltaSlice(t, []float64{1.75, 1.5, 1}, got, 1e-12)
	assert.Empty(t, DiscountedReturns(nil, 0.99))
}

func TestAdvantagesLambdaZeroIsTD(t *testing.T) {
	rewards := []float64{1, -2, 0.5, 3}
	values := []float64{0.3, 0.1, -0.4, 2}
	dones := []bool{false, true, false, true}

	td, err := TDAdvantages(rewards, values, dones, 0.9)
	require.NoError(t, err)
	adv, ret, err := Advantages(rewards, values, dones, 0.9, 0)
	require.NoError(t, err)

	assert.InDeltaSlice(t, td, adv, 1e-12)
	for i := range ret {
		assert.InDelta(t, adv[i]+values[i], ret[i], 1e-12)
	}

	// Episode boundaries stop bootstrapping
	assert.InDelta(t, 1+0.9*0.1-0.3, adv[0], 1e-12)
	assert.InDelta(t, -2-0.1, adv[1], 1e-12)
}

func TestAdvantagesSingleTerminalStep(t *testing.T) {
	adv, ret, err := Advantages([]float64{2.5}, []float64{0.75}, []bool{true},
		0.99, 0.95)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.5 - 0.75}, adv, 1e-12)
	assert.InDeltaSlice(t, []float64{2.5}, ret, 1e-12)
}

func TestAdvantagesLambdaOneIsMonteCarlo(t *testing.T) {
	rewards := []float64{1, 2, 3}
	values := []float64{0.5, -1, 4}
	dones := []bool{false, false, true}

	adv, _, err := Advantages(rewards, values, dones, 0.9, 1)
	require.NoError(t, err)
	returns := DiscountedReturns(rewards, 0.9)
	for i := range adv {
		assert.InDelta(t, returns[i]-values[i], adv[i], 1e-12)
	}
}

func TestAdvantagesMismatchedLengths(t *testing.T) {
	_, _, err := Advantages([]float64{1}, []float64{1, 2}, []bool{true}, 0.9,
		0.9)
	assert.Error(t, err)
}

func TestStandardize(t *testing.T) {
	x := []float64{1, 2, 3, 4, 10}
	z := Standardize(x)
	assert.InDelta(t, 0, stat.Mean(z, nil), 1e-9)
	assert.InDelta(t, 1, stat.StdDev(z, nil), 1e-6)
	assert.Equal(t, []float64{1, 2, 3, 4, 10}, x, "input must not change")

	assert.Equal(t, []float64{0}, Standardize([]float64{5}))
	assert.Empty(t, Standardize(nil))
}

func TestEpisodicReturnsResetAtEpisodeEnd(t *testing.T) {
	returns, err := EpisodicReturns([]float64{1, 1, 2, 2},
		[]bool{false, true, false, true}, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5, 1, 3, 2}, returns, 1e-12)

	_, err = EpisodicReturns([]float64{1}, nil, 0.5)
	assert.Error(t, err)
}
